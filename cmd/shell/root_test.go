package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/hanko-shell/internal/config"
)

func TestFileSecrets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shell"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shell", "session"), []byte("k3y\n"), 0o600))

	resolve := fileSecrets(dir)
	got, err := resolve.ResolveSecret(context.Background(), "secret://shell/session")
	require.NoError(t, err)
	require.Equal(t, "k3y", got)

	_, err = resolve.ResolveSecret(context.Background(), "secret://../etc/passwd")
	require.Error(t, err)
	_, err = resolve.ResolveSecret(context.Background(), "secret://missing")
	require.Error(t, err)
}

func TestShellConfigUsesSiteDocument(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		Site: config.SiteConfig{Dir: dir},
		Catalog: config.CatalogConfig{
			SoldOut:  []string{"3"},
			Overlays: []config.OverlayConfig{{Name: "refund-modal", URL: "/terms/refund.md", Trigger: "open-refund"}},
		},
	}

	sc, err := shellConfig(cfg, "http://shop.test")
	require.NoError(t, err)
	require.Empty(t, sc.Document)
	require.Equal(t, "http://shop.test", sc.BaseURL)
	require.Equal(t, []string{"3"}, sc.SoldOut)
	require.Len(t, sc.Overlays, 1)
	require.Equal(t, "open-refund", sc.Overlays[0].Trigger)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html><body id=x></body></html>"), 0o600))
	sc, err = shellConfig(cfg, "http://shop.test")
	require.NoError(t, err)
	require.Contains(t, sc.Document, "id=x")
}
