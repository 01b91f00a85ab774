package layout

import (
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"finitefield.org/hanko-shell/internal/dom"
)

const (
	// FooterHeightProperty is the custom property consumed by the stylesheet
	// for the floating action button offset.
	FooterHeightProperty = "--sticky-footer-height"

	stickyFooterSelector = ".sticky-footer"
	defaultContentID     = "main-content"
)

// Signal names what caused a reconciliation.
type Signal int

const (
	SignalStart Signal = iota
	SignalContentChanged
	SignalFooterResized
	SignalViewportResized
)

func (s Signal) String() string {
	switch s {
	case SignalStart:
		return "start"
	case SignalContentChanged:
		return "content-changed"
	case SignalFooterResized:
		return "footer-resized"
	case SignalViewportResized:
		return "viewport-resized"
	default:
		return "unknown"
	}
}

// FooterMetrics is the derived footer measurement.
type FooterMetrics struct {
	Height float64
	// Present is false when no sticky footer is in the document.
	Present bool
}

// Measurer reports the rendered height of the footer element.
type Measurer interface {
	Height(footer *goquery.Selection) float64
}

// MeasurerFunc adapts a function to Measurer.
type MeasurerFunc func(footer *goquery.Selection) float64

// Height implements Measurer.
func (f MeasurerFunc) Height(footer *goquery.Selection) float64 { return f(footer) }

// AttributeMeasurer reads a data-height attribute, falling back to an inline
// pixel height. Headless documents have no layout engine, so whoever renders
// the footer records its height there.
var AttributeMeasurer = MeasurerFunc(func(footer *goquery.Selection) float64 {
	if v, ok := dom.ParsePixels(footer.AttrOr("data-height", "")); ok {
		return v
	}
	if v, ok := dom.ParsePixels(dom.Style(footer, "height")); ok {
		return v
	}
	return 0
})

// Reconciler keeps the footer height custom property and body bottom padding
// equal to the current sticky footer's height.
type Reconciler struct {
	page      *dom.Page
	measurer  Measurer
	hub       *ObserverHub
	contentID string
	logger    *zap.Logger

	mu          sync.Mutex
	observer    SizeObserver
	footer      *html.Node
	metrics     FooterMetrics
	runs        int
	unsubscribe func()
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithMeasurer overrides footer measurement.
func WithMeasurer(m Measurer) Option {
	return func(r *Reconciler) {
		if m != nil {
			r.measurer = m
		}
	}
}

// WithObserverHub shares a size observer hub.
func WithObserverHub(h *ObserverHub) Option {
	return func(r *Reconciler) {
		if h != nil {
			r.hub = h
		}
	}
}

// WithContentID changes the observed content container id.
func WithContentID(id string) Option {
	return func(r *Reconciler) {
		if id != "" {
			r.contentID = id
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds a Reconciler. Call Start to begin observing.
func New(page *dom.Page, opts ...Option) *Reconciler {
	r := &Reconciler{
		page:      page,
		measurer:  AttributeMeasurer,
		hub:       NewObserverHub(),
		contentID: defaultContentID,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hub exposes the size observer hub so footer owners can report resizes.
func (r *Reconciler) Hub() *ObserverHub { return r.hub }

// Start subscribes to content child list changes and runs an initial pass.
// It does nothing when the content container is missing.
func (r *Reconciler) Start() {
	if r.page.Find("#"+r.contentID) == nil {
		r.logger.Warn("layout: content container missing", zap.String("id", r.contentID))
		return
	}
	r.mu.Lock()
	if r.unsubscribe == nil {
		r.unsubscribe = r.page.Subscribe(r.onMutations)
	}
	r.mu.Unlock()
	r.Notify(SignalStart)
}

// Stop detaches every observation.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	r.detach()
}

func (r *Reconciler) onMutations(batch []dom.Mutation) {
	for _, m := range batch {
		if m.Kind == dom.ChildList && m.TargetID == r.contentID {
			r.Notify(SignalContentChanged)
			return
		}
	}
}

// ViewportResized is the window resize trigger.
func (r *Reconciler) ViewportResized() { r.Notify(SignalViewportResized) }

// Notify recomputes the layout from scratch. Every signal runs the same pass:
// detach the previous observer, find the footer currently in the document,
// observe it and write the derived offsets.
func (r *Reconciler) Notify(sig Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++

	r.detach()

	var footer *html.Node
	var height float64
	r.page.View(func(doc *goquery.Document) {
		sel := doc.Find(stickyFooterSelector).First()
		if sel.Length() == 0 {
			return
		}
		footer = sel.Get(0)
		height = r.measurer.Height(sel)
	})

	if footer != nil {
		r.observer = r.hub.New(func() { r.Notify(SignalFooterResized) })
		r.observer.Observe(footer)
		r.footer = footer
	}
	r.metrics = FooterMetrics{Height: height, Present: footer != nil}

	px := dom.Pixels(height)
	_ = r.page.Update(func(tx *dom.Tx) error {
		root := tx.Doc.Find("html")
		body := tx.Doc.Find("body")
		dom.SetStyle(root, FooterHeightProperty, px)
		dom.SetStyle(body, "padding-bottom", px)
		tx.Touch(root)
		tx.Touch(body)
		return nil
	})
	r.logger.Debug("layout reconciled",
		zap.Stringer("signal", sig),
		zap.Bool("footer", footer != nil),
		zap.Float64("height", height),
	)
}

// detach disconnects the current observer. Caller holds r.mu.
func (r *Reconciler) detach() {
	if r.observer != nil {
		r.observer.Disconnect()
		r.observer = nil
	}
	r.footer = nil
}

// Metrics returns the latest footer measurement.
func (r *Reconciler) Metrics() FooterMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// Footer returns the footer element currently observed, or nil.
func (r *Reconciler) Footer() *html.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.footer
}

// Runs returns how many reconciliation passes have executed.
func (r *Reconciler) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}
