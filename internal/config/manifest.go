package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// maxManifestSize bounds the manifest read from disk.
const maxManifestSize = 1 << 20

// Manifest is the optional site description shipped next to the static site.
//
//	sold_out: ["1", "7"]
//	overlays:
//	  - name: standard-terms-modal
//	    url: /terms/modal_standard_terms.html
//	    trigger: open-standard-terms
type Manifest struct {
	SoldOut  []string        `yaml:"sold_out"`
	Overlays []OverlayConfig `yaml:"overlays"`
}

// OverlayConfig names an overlay fragment, where it lives and which element
// opens it.
type OverlayConfig struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Trigger string `yaml:"trigger,omitempty"`
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("config: open manifest: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxManifestSize+1))
	if err != nil {
		return Manifest{}, fmt.Errorf("config: read manifest: %w", err)
	}
	if len(raw) > maxManifestSize {
		return Manifest{}, fmt.Errorf("config: manifest %s exceeds %d bytes", path, maxManifestSize)
	}
	return ParseManifest(raw)
}

// ParseManifest decodes manifest YAML. Unknown keys are rejected so typos do
// not silently drop overlays.
func ParseManifest(raw []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && err != io.EOF {
		return Manifest{}, fmt.Errorf("config: parse manifest: %w", err)
	}
	return m, nil
}
