package fragment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 10 * time.Second
	maxFragmentSize = 4 << 20
	maxAssetSize    = 8 << 20
)

// StatusError reports a non-success HTTP response for a fragment or asset.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fragment: GET %s status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fragment: GET %s status %d: %s", e.URL, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Loader fetches fragment documents and raw assets relative to a site base URL.
type Loader struct {
	base     *url.URL
	http     *http.Client
	sanitize *bluemonday.Policy
	logger   *zap.Logger
}

// Option customises a Loader.
type Option func(*Loader)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		if c != nil {
			l.http = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.http = &http.Client{Timeout: d}
		}
	}
}

// WithSanitizer filters extracted body markup through p before it is returned.
func WithSanitizer(p *bluemonday.Policy) Option {
	return func(l *Loader) {
		l.sanitize = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader constructs a Loader resolving references against baseURL.
func NewLoader(baseURL string, opts ...Option) (*Loader, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("fragment: invalid base url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("fragment: base url %q must be absolute", baseURL)
	}
	if base.Path == "" {
		base.Path = "/"
	}
	l := &Loader{
		base:   base,
		http:   &http.Client{Timeout: defaultTimeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Resolve turns a fragment reference into an absolute URL.
func (l *Loader) Resolve(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("fragment: invalid reference %q: %w", ref, err)
	}
	return l.base.ResolveReference(u).String(), nil
}

// Fetch returns the raw text of ref.
func (l *Loader) Fetch(ctx context.Context, ref string) (string, error) {
	b, err := l.get(ctx, ref, maxFragmentSize)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FetchBody fetches ref and returns the markup of its <body>.
func (l *Loader) FetchBody(ctx context.Context, ref string) (string, error) {
	raw, err := l.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}
	body, err := BodyMarkup(raw)
	if err != nil {
		return "", err
	}
	if l.sanitize != nil {
		body = l.sanitize.Sanitize(body)
	}
	return body, nil
}

// FetchBytes returns the raw bytes of an asset such as an image.
func (l *Loader) FetchBytes(ctx context.Context, ref string) ([]byte, error) {
	return l.get(ctx, ref, maxAssetSize)
}

func (l *Loader) get(ctx context.Context, ref string, limit int64) ([]byte, error) {
	target, err := l.Resolve(ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fragment: GET %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode, Body: drainError(resp.Body)}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("fragment: read %s: %w", target, err)
	}
	l.logger.Debug("fragment fetched",
		zap.String("url", target),
		zap.Int("bytes", len(b)),
		zap.Duration("duration", time.Since(start)),
	)
	return b, nil
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
