package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.RenderTimeout != defaultRenderTimeout {
		t.Errorf("unexpected render timeout: %s", cfg.Server.RenderTimeout)
	}
	if cfg.Site.BaseURL != "" {
		t.Errorf("expected empty base url, got %s", cfg.Site.BaseURL)
	}
	if cfg.Site.Dir != "public" {
		t.Errorf("unexpected site dir: %s", cfg.Site.Dir)
	}
	if cfg.UI.ToastDuration != 2500*time.Millisecond {
		t.Errorf("unexpected toast duration: %s", cfg.UI.ToastDuration)
	}
	if cfg.UI.ShareFeedback != 2*time.Second {
		t.Errorf("unexpected share feedback: %s", cfg.UI.ShareFeedback)
	}
	if cfg.Catalog.SoldOut != nil {
		t.Errorf("expected nil sold-out list so the router default applies, got %v", cfg.Catalog.SoldOut)
	}
	if cfg.Session.CookieName != defaultCookieName {
		t.Errorf("unexpected cookie name: %s", cfg.Session.CookieName)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("unexpected log level: %s", cfg.Log.Level)
	}
}

func TestLoadWithOverridesAndSecret(t *testing.T) {
	env := map[string]string{
		"SHELL_SERVER_PORT":         "9090",
		"SHELL_SITE_BASE_URL":       "https://shop.example/",
		"SHELL_HTTP_TIMEOUT":        "3s",
		"SHELL_SANITIZE_FRAGMENTS":  "yes",
		"SHELL_SOLD_OUT_IDS":        " 1, 4 ,,9",
		"SHELL_TOAST_DURATION":      "1s",
		"SHELL_LOG_LEVEL":           "DEBUG",
		"SHELL_SESSION_SIGNING_KEY": "sm://shell/session",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://shell/session" {
			t.Fatalf("unexpected secret ref %q", ref)
		}
		return " signing-key ", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Site.BaseURL != "https://shop.example" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Site.BaseURL)
	}
	if cfg.Fetch.Timeout != 3*time.Second || !cfg.Fetch.Sanitize {
		t.Errorf("unexpected fetch config: %+v", cfg.Fetch)
	}
	if got := cfg.Catalog.SoldOut; len(got) != 3 || got[0] != "1" || got[1] != "4" || got[2] != "9" {
		t.Errorf("unexpected sold-out ids: %v", got)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected lowercased level, got %s", cfg.Log.Level)
	}
	if cfg.Session.SigningKey != "signing-key" {
		t.Errorf("expected resolved signing key, got %q", cfg.Session.SigningKey)
	}
}

func TestLoadEmptySoldOutDisablesDefault(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{"SHELL_SOLD_OUT_IDS": ""}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Catalog.SoldOut == nil || len(cfg.Catalog.SoldOut) != 0 {
		t.Fatalf("expected explicit empty sold-out list, got %#v", cfg.Catalog.SoldOut)
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := map[string]string{"SHELL_SESSION_SIGNING_KEY": "secret://shell/session"}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver not configured, got %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	env := map[string]string{
		"SHELL_SERVER_PORT":    "http",
		"SHELL_SITE_BASE_URL":  "/relative",
		"SHELL_HTTP_TIMEOUT":   "-1s",
		"SHELL_SESSION_COOKIE": " ",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := map[string]bool{"Server.Port": true, "Site.BaseURL": true, "Fetch.Timeout": true, "Session.CookieName": true}
	fields := vErr.Fields()
	if len(fields) != len(want) {
		t.Fatalf("unexpected fields: %v", fields)
	}
	for _, f := range fields {
		if !want[f] {
			t.Errorf("unexpected field %s", f)
		}
	}
}

func TestLoadReadsDotEnvBelowEnvMap(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "# comment\nexport SHELL_SERVER_PORT=7070\nSHELL_LOG_LEVEL='warn'\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envFile), WithoutSystemEnv(), WithEnvMap(map[string]string{"SHELL_LOG_LEVEL": "error"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv, got %s", cfg.Server.Port)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected env map to win over dotenv, got %s", cfg.Log.Level)
	}
}

func TestLoadManifestSuppliesCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yaml")
	manifest := `sold_out: ["2"]
overlays:
  - name: refund-modal
    url: /terms/refund.md
    trigger: open-refund
`
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{"SHELL_MANIFEST": path}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Catalog.SoldOut) != 1 || cfg.Catalog.SoldOut[0] != "2" {
		t.Errorf("unexpected sold-out ids: %v", cfg.Catalog.SoldOut)
	}
	if len(cfg.Catalog.Overlays) != 1 || cfg.Catalog.Overlays[0].Trigger != "open-refund" {
		t.Errorf("unexpected overlays: %+v", cfg.Catalog.Overlays)
	}

	// Environment wins over the manifest for sold-out ids.
	cfg, err = Load(context.Background(), WithEnvMap(map[string]string{"SHELL_MANIFEST": path, "SHELL_SOLD_OUT_IDS": "5"}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Catalog.SoldOut) != 1 || cfg.Catalog.SoldOut[0] != "5" {
		t.Errorf("expected env sold-out ids, got %v", cfg.Catalog.SoldOut)
	}
}

func TestParseManifestRejectsUnknownKeys(t *testing.T) {
	if _, err := ParseManifest([]byte("soldout: [1]\n")); err == nil {
		t.Fatal("expected unknown key error")
	}
	m, err := ParseManifest(nil)
	if err != nil {
		t.Fatalf("empty manifest: %v", err)
	}
	if m.SoldOut != nil || m.Overlays != nil {
		t.Fatalf("expected zero manifest, got %+v", m)
	}
}

func TestOverlayValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yaml")
	if err := os.WriteFile(path, []byte("overlays:\n  - name: broken\n"), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	_, err := Load(context.Background(), WithEnvMap(map[string]string{"SHELL_MANIFEST": path}), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Fields()[0] != "Catalog.Overlays[0]" {
		t.Fatalf("expected overlay validation error, got %v", err)
	}
}
