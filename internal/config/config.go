package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile       = ".env"
	defaultPort          = "8080"
	defaultReadTimeout   = 15 * time.Second
	defaultWriteTimeout  = 30 * time.Second
	defaultIdleTimeout   = 120 * time.Second
	defaultRenderTimeout = 10 * time.Second
	defaultHTTPTimeout   = 10 * time.Second
	defaultSiteDir       = "public"
	defaultToastDuration = 2500 * time.Millisecond
	defaultShareFeedback = 2 * time.Second
	defaultCookieName    = "SHELL_SESSION"
	defaultLogLevel      = "info"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig
	Site    SiteConfig
	Fetch   FetchConfig
	UI      UIConfig
	Catalog CatalogConfig
	Session SessionConfig
	Log     LogConfig
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	RenderTimeout time.Duration
}

// SiteConfig locates the storefront content.
type SiteConfig struct {
	// BaseURL is where fragments and images are fetched from. Empty means the
	// server's own static site.
	BaseURL string
	// Dir is the static site root served by the server.
	Dir string
	// Manifest is an optional YAML file describing the catalog and overlays.
	Manifest string
}

// FetchConfig controls fragment loading.
type FetchConfig struct {
	Timeout  time.Duration
	Sanitize bool
}

// UIConfig holds transient feedback timings.
type UIConfig struct {
	ToastDuration time.Duration
	ShareFeedback time.Duration
}

// CatalogConfig describes products and overlays. Nil slices mean the built-in
// defaults apply.
type CatalogConfig struct {
	SoldOut  []string
	Overlays []OverlayConfig
}

// SessionConfig configures the signed session cookie.
type SessionConfig struct {
	SigningKey string
	CookieName string
	Secure     bool
}

// LogConfig configures logging.
type LogConfig struct {
	Level string
}

// SecretResolver resolves references to external secrets.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises configuration loading.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the dotenv file. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap supplies values that take precedence over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver resolves secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load reads configuration from the dotenv file, the process environment and
// the explicit map, in increasing precedence.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:          stringWithDefault(lookup, "SHELL_SERVER_PORT", defaultPort),
			ReadTimeout:   durationWithDefault(lookup, "SHELL_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:  durationWithDefault(lookup, "SHELL_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:   durationWithDefault(lookup, "SHELL_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RenderTimeout: durationWithDefault(lookup, "SHELL_SERVER_RENDER_TIMEOUT", defaultRenderTimeout),
		},
		Site: SiteConfig{
			BaseURL:  strings.TrimRight(stringWithDefault(lookup, "SHELL_SITE_BASE_URL", ""), "/"),
			Dir:      stringWithDefault(lookup, "SHELL_SITE_DIR", defaultSiteDir),
			Manifest: stringWithDefault(lookup, "SHELL_MANIFEST", ""),
		},
		Fetch: FetchConfig{
			Timeout:  durationWithDefault(lookup, "SHELL_HTTP_TIMEOUT", defaultHTTPTimeout),
			Sanitize: boolWithDefault(lookup, "SHELL_SANITIZE_FRAGMENTS", false),
		},
		UI: UIConfig{
			ToastDuration: durationWithDefault(lookup, "SHELL_TOAST_DURATION", defaultToastDuration),
			ShareFeedback: durationWithDefault(lookup, "SHELL_SHARE_FEEDBACK", defaultShareFeedback),
		},
		Session: SessionConfig{
			SigningKey: stringWithDefault(lookup, "SHELL_SESSION_SIGNING_KEY", ""),
			CookieName: stringWithDefault(lookup, "SHELL_SESSION_COOKIE", defaultCookieName),
			Secure:     boolWithDefault(lookup, "SHELL_SESSION_SECURE", false),
		},
		Log: LogConfig{
			Level: strings.ToLower(stringWithDefault(lookup, "SHELL_LOG_LEVEL", defaultLogLevel)),
		},
	}
	if raw, ok := lookup("SHELL_SOLD_OUT_IDS"); ok {
		cfg.Catalog.SoldOut = csvWithDefault(raw)
	}

	if cfg.Site.Manifest != "" {
		m, err := LoadManifest(cfg.Site.Manifest)
		if err != nil {
			return Config{}, err
		}
		if cfg.Catalog.SoldOut == nil && m.SoldOut != nil {
			cfg.Catalog.SoldOut = m.SoldOut
		}
		cfg.Catalog.Overlays = m.Overlays
	}

	resolved, err := resolveSecret(ctx, cfg.Session.SigningKey, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.Session.SigningKey = resolved

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	} else if _, err := strconv.Atoi(cfg.Server.Port); err != nil {
		missing = append(missing, "Server.Port")
	}
	if cfg.Server.RenderTimeout <= 0 {
		missing = append(missing, "Server.RenderTimeout")
	}
	if cfg.Site.BaseURL != "" {
		u, err := url.Parse(cfg.Site.BaseURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			missing = append(missing, "Site.BaseURL")
		}
	}
	if cfg.Fetch.Timeout <= 0 {
		missing = append(missing, "Fetch.Timeout")
	}
	if cfg.UI.ToastDuration <= 0 {
		missing = append(missing, "UI.ToastDuration")
	}
	if strings.TrimSpace(cfg.Session.CookieName) == "" {
		missing = append(missing, "Session.CookieName")
	}
	for i, o := range cfg.Catalog.Overlays {
		if o.Name == "" || o.URL == "" {
			missing = append(missing, fmt.Sprintf("Catalog.Overlays[%d]", i))
		}
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
