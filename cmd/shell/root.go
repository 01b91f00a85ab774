package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finitefield.org/hanko-shell/internal/config"
	"finitefield.org/hanko-shell/internal/observability"
	"finitefield.org/hanko-shell/internal/shell"
)

var (
	envFile    string
	secretsDir string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "shell",
	Short: "Headless storefront shell",
	Long: `shell renders the storefront single-page shell on the server. It serves
the static site, restores deep links through the session and exposes the
rendered document and click dispatch over HTTP.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read below the process environment")
	rootCmd.PersistentFlags().StringVar(&secretsDir, "secrets-dir", "", "directory holding mounted secrets for secret:// references")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "overrides SHELL_LOG_LEVEL")
}

// loadConfig reads configuration and builds the process logger.
func loadConfig(ctx context.Context) (config.Config, *zap.Logger, error) {
	opts := []config.Option{config.WithEnvFile(envFile)}
	if secretsDir != "" {
		opts = append(opts, config.WithSecretResolver(fileSecrets(secretsDir)))
	}
	cfg, err := config.Load(ctx, opts...)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, logger, nil
}

// fileSecrets resolves secret://name to the trimmed contents of dir/name.
func fileSecrets(dir string) config.SecretResolver {
	return config.SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		name := strings.TrimPrefix(ref, "secret://")
		if name == "" || strings.Contains(name, "..") {
			return "", errors.New("invalid secret name")
		}
		raw, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	})
}

// shellConfig maps loaded configuration onto a shell template. A shell
// document at <site>/index.html replaces the embedded one.
func shellConfig(cfg config.Config, baseURL string) (shell.Config, error) {
	sc := shell.Config{
		BaseURL:       baseURL,
		SoldOut:       cfg.Catalog.SoldOut,
		HTTPTimeout:   cfg.Fetch.Timeout,
		Sanitize:      cfg.Fetch.Sanitize,
		ToastDuration: cfg.UI.ToastDuration,
		ShareFeedback: cfg.UI.ShareFeedback,
	}
	for _, o := range cfg.Catalog.Overlays {
		sc.Overlays = append(sc.Overlays, shell.Overlay{Name: o.Name, URL: o.URL, Trigger: o.Trigger})
	}
	raw, err := os.ReadFile(filepath.Join(cfg.Site.Dir, "index.html"))
	switch {
	case err == nil:
		sc.Document = string(raw)
	case !errors.Is(err, os.ErrNotExist):
		return shell.Config{}, fmt.Errorf("reading shell document: %w", err)
	}
	return sc, nil
}
