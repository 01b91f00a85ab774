package overlay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"path"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"finitefield.org/hanko-shell/internal/dom"
	"finitefield.org/hanko-shell/internal/fragment"
)

const (
	// CloseButtonTopMargin keeps the close affordance 1.5rem below the top of
	// the visible scroll window.
	CloseButtonTopMargin = 1.5 * 16

	modalClass   = "modal"
	contentClass = "modal-content"
	closeClass   = "close-button"
)

// ErrMissingElement is returned when a loaded fragment does not contain an
// element with the overlay's id.
var ErrMissingElement = errors.New("overlay: fragment has no element for overlay")

// Fetcher loads overlay fragments.
type Fetcher interface {
	FetchBody(ctx context.Context, ref string) (string, error)
	Fetch(ctx context.Context, ref string) (string, error)
}

// Handle is a loaded overlay. It lives for the lifetime of the page.
type Handle struct {
	ID     string
	Source string
	open   bool
}

// IsOpen reports whether the overlay is displayed.
func (h Handle) IsOpen() bool { return h.open }

// Registry owns every overlay in the shell and the document scroll lock.
type Registry struct {
	page     *dom.Page
	fetcher  Fetcher
	markdown goldmark.Markdown
	logger   *zap.Logger
	group    singleflight.Group

	mu        sync.Mutex
	handles   map[string]*Handle
	openCount int
}

// Option customises a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMarkdown overrides the markdown renderer used for .md overlays.
func WithMarkdown(md goldmark.Markdown) Option {
	return func(r *Registry) {
		if md != nil {
			r.markdown = md
		}
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(page *dom.Page, fetcher Fetcher, opts ...Option) *Registry {
	r := &Registry{
		page:     page,
		fetcher:  fetcher,
		markdown: goldmark.New(),
		logger:   zap.NewNop(),
		handles:  map[string]*Handle{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load fetches the overlay fragment at url and appends it to the body, at most
// once per name. Concurrent loads of the same name share one fetch. On failure
// the name stays unregistered and later Open calls are no-ops.
func (r *Registry) Load(ctx context.Context, name, url string) error {
	if r.Has(name) {
		return nil
	}
	_, err, _ := r.group.Do(name, func() (any, error) {
		if r.Has(name) {
			return nil, nil
		}
		return nil, r.load(ctx, name, url)
	})
	if err != nil {
		r.logger.Error("could not load overlay",
			zap.String("overlay", name),
			zap.String("url", url),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *Registry) load(ctx context.Context, name, url string) error {
	markup, err := r.fetchMarkup(ctx, name, url)
	if err != nil {
		return err
	}
	found, err := fragment.ContainsID(markup, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: #%s in %s", ErrMissingElement, name, url)
	}
	err = r.page.Update(func(tx *dom.Tx) error {
		tx.AppendHTML(tx.Doc.Find("body"), markup)
		el := tx.Doc.Find("#" + name)
		if dom.Display(el) == "" {
			dom.SetStyle(el, "display", "none")
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.handles[name] = &Handle{ID: name, Source: url}
	r.mu.Unlock()
	r.logger.Info("overlay loaded", zap.String("overlay", name), zap.String("url", url))
	return nil
}

func (r *Registry) fetchMarkup(ctx context.Context, name, url string) (string, error) {
	if path.Ext(url) != ".md" {
		return r.fetcher.FetchBody(ctx, url)
	}
	src, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("overlay: render %s: %w", url, err)
	}
	return wrapMarkdown(name, buf.String()), nil
}

func wrapMarkdown(id, body string) string {
	return `<div id="` + html.EscapeString(id) + `" class="` + modalClass + `" style="display: none;">` +
		`<div class="` + contentClass + `"><span class="` + closeClass + `">&times;</span>` +
		body + `</div></div>`
}

// Register adopts an overlay element that is already part of the shell.
func (r *Registry) Register(name string) error {
	if r.Has(name) {
		return nil
	}
	found := false
	r.page.View(func(doc *goquery.Document) {
		found = doc.Find("#"+name).Length() > 0
	})
	if !found {
		return fmt.Errorf("%w: #%s", ErrMissingElement, name)
	}
	r.mu.Lock()
	r.handles[name] = &Handle{ID: name}
	r.mu.Unlock()
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[name]
	return ok
}

// Handle returns a copy of the named overlay's handle.
func (r *Registry) Handle(name string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[name]
	if !ok {
		return Handle{}, false
	}
	return *h, true
}

// Open displays the overlay and locks document scrolling. Unknown names are
// ignored and report false.
func (r *Registry) Open(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[name]
	if !ok {
		r.logger.Debug("open on unknown overlay", zap.String("overlay", name))
		return false
	}
	if !h.open {
		h.open = true
		r.openCount++
	}
	r.apply(name, "block")
	return true
}

// Close hides the overlay. Scrolling is restored only once no overlay remains
// open.
func (r *Registry) Close(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[name]
	if !ok {
		return false
	}
	if h.open {
		h.open = false
		r.openCount--
	}
	r.apply(name, "none")
	return true
}

// CloseByBackdrop closes the overlay whose own element, not its content, was
// clicked. Ids that are not overlays are ignored.
func (r *Registry) CloseByBackdrop(elementID string) bool {
	if !r.Has(elementID) {
		return false
	}
	return r.Close(elementID)
}

// ScrollLocked reports whether document scrolling is disabled.
func (r *Registry) ScrollLocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openCount > 0
}

// OpenCount returns the number of open overlays.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openCount
}

// apply writes display and body overflow. Caller holds r.mu.
func (r *Registry) apply(name, display string) {
	overflow := "auto"
	if r.openCount > 0 {
		overflow = "hidden"
	}
	_ = r.page.Update(func(tx *dom.Tx) error {
		el := tx.Doc.Find("#" + name)
		dom.SetStyle(el, "display", display)
		body := tx.Doc.Find("body")
		dom.SetStyle(body, "overflow", overflow)
		tx.Touch(el)
		tx.Touch(body)
		return nil
	})
}

// Scroll pins the overlay's close affordance near the top of its visible
// scroll window after its content scrolled to scrollTop.
func (r *Registry) Scroll(name string, scrollTop float64) bool {
	if !r.Has(name) {
		return false
	}
	pinned := false
	_ = r.page.Update(func(tx *dom.Tx) error {
		el := tx.Doc.Find("#" + name)
		content := el.Find("." + contentClass).First()
		btn := el.Find("." + closeClass).First()
		if content.Length() == 0 || btn.Length() == 0 {
			return nil
		}
		dom.SetStyle(btn, "top", dom.Pixels(scrollTop+CloseButtonTopMargin))
		tx.Touch(btn)
		pinned = true
		return nil
	})
	return pinned
}

// Names lists registered overlays.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.handles))
	for name := range r.handles {
		out = append(out, name)
	}
	return out
}
