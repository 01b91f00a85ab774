package shell

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finitefield.org/hanko-shell/internal/dispatch"
	"finitefield.org/hanko-shell/internal/dom"
	"finitefield.org/hanko-shell/internal/fragment"
	"finitefield.org/hanko-shell/internal/layout"
	"finitefield.org/hanko-shell/internal/nav"
	"finitefield.org/hanko-shell/internal/overlay"
	"finitefield.org/hanko-shell/internal/payment"
	"finitefield.org/hanko-shell/internal/router"
	"finitefield.org/hanko-shell/internal/session"
	"finitefield.org/hanko-shell/internal/share"
	"finitefield.org/hanko-shell/internal/toast"
)

//go:embed assets/index.html
var defaultDocument string

const (
	navMenuSelector    = "#nav-menu"
	menuToggleSelector = ".menu-toggle"
	activeClass        = "active"
)

// ErrNoElement is returned by Click when the selector matches nothing.
var ErrNoElement = errors.New("shell: no element matches selector")

// Overlay is an overlay fragment loaded at startup. Trigger is the id of the
// element that opens it; empty means it is opened programmatically only.
type Overlay struct {
	Name    string
	URL     string
	Trigger string
}

// DefaultOverlays are the terms overlays of the stock storefront.
var DefaultOverlays = []Overlay{
	{Name: "standard-terms-modal", URL: "/terms/modal_standard_terms.html", Trigger: "open-standard-terms"},
	{Name: "special-terms-modal", URL: "/terms/modal_special_terms.html", Trigger: "open-special-terms"},
}

// Config describes one shell instance.
type Config struct {
	// BaseURL is the site origin fragments and images are fetched from.
	BaseURL string
	// Path is the location the shell starts at.
	Path string
	// Document is the shell markup. Empty uses the embedded storefront shell.
	Document string
	// SoldOut lists sold-out product ids. Nil keeps the router default.
	SoldOut []string
	// Overlays loaded at startup. Nil uses DefaultOverlays.
	Overlays      []Overlay
	HTTPTimeout   time.Duration
	Sanitize      bool
	ToastDuration time.Duration
	ShareFeedback time.Duration
}

// Option customises an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithSession sets the session store consulted for a pending redirect.
func WithSession(s session.Store) Option {
	return func(a *App) { a.session = s }
}

// WithClipboard sets the share clipboard.
func WithClipboard(c share.Clipboard) Option {
	return func(a *App) {
		if c != nil {
			a.clipboard = c
		}
	}
}

// WithDecoder overrides the payment QR decoder.
func WithDecoder(d payment.Decoder) Option {
	return func(a *App) { a.decoder = d }
}

// WithHTTPClient sets the client used for fragments and images.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.client = c }
}

// WithMeasurer overrides sticky footer measurement.
func WithMeasurer(m layout.Measurer) Option {
	return func(a *App) { a.measurer = m }
}

// App is the application context of one shell document. It owns every
// component and implements the actions clicks resolve to.
type App struct {
	cfg       Config
	logger    *zap.Logger
	session   session.Store
	clipboard share.Clipboard
	decoder   payment.Decoder
	client    *http.Client
	measurer  layout.Measurer

	page       *dom.Page
	history    *History
	viewport   *Viewport
	loader     *fragment.Loader
	router     *router.Router
	overlays   *overlay.Registry
	layout     *layout.Reconciler
	panel      *payment.Panel
	toasts     *toast.Notifier
	share      *share.Action
	dispatcher *dispatch.Dispatcher
}

// New wires a shell. Nothing is fetched until Start.
func New(cfg Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		logger:    zap.NewNop(),
		clipboard: &share.MemoryClipboard{},
		viewport:  &Viewport{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cfg.Overlays == nil {
		a.cfg.Overlays = DefaultOverlays
	}
	doc := a.cfg.Document
	if doc == "" {
		doc = defaultDocument
	}

	page, err := dom.ParseString(doc)
	if err != nil {
		return nil, fmt.Errorf("shell: parse document: %w", err)
	}
	a.page = page
	a.history = NewHistory(a.cfg.BaseURL, a.cfg.Path)

	loaderOpts := []fragment.Option{fragment.WithLogger(a.logger.Named("fragment"))}
	if a.client != nil {
		loaderOpts = append(loaderOpts, fragment.WithHTTPClient(a.client))
	}
	if a.cfg.HTTPTimeout > 0 {
		loaderOpts = append(loaderOpts, fragment.WithTimeout(a.cfg.HTTPTimeout))
	}
	if a.cfg.Sanitize {
		loaderOpts = append(loaderOpts, fragment.WithSanitizer(fragment.NewSanitizer()))
	}
	a.loader, err = fragment.NewLoader(a.cfg.BaseURL, loaderOpts...)
	if err != nil {
		return nil, err
	}

	routerOpts := []router.Option{
		router.WithViewport(a.viewport),
		router.WithLogger(a.logger.Named("router")),
	}
	if a.cfg.SoldOut != nil {
		routerOpts = append(routerOpts, router.WithSoldOut(a.cfg.SoldOut...))
	}
	a.router = router.New(page, a.loader, a.history, routerOpts...)

	a.overlays = overlay.NewRegistry(page, a.loader, overlay.WithLogger(a.logger.Named("overlay")))

	layoutOpts := []layout.Option{layout.WithLogger(a.logger.Named("layout"))}
	if a.measurer != nil {
		layoutOpts = append(layoutOpts, layout.WithMeasurer(a.measurer))
	}
	a.layout = layout.New(page, layoutOpts...)

	a.panel = payment.NewPanel(page, a.overlays, a.loader,
		payment.WithDecoder(a.decoder),
		payment.WithLogger(a.logger.Named("payment")),
	)
	a.toasts = toast.New(page,
		toast.WithDuration(a.cfg.ToastDuration),
		toast.WithLogger(a.logger.Named("toast")),
	)
	a.share = share.NewAction(page, a.clipboard, a.toasts, a.history,
		share.WithFeedback(a.cfg.ShareFeedback),
		share.WithLogger(a.logger.Named("share")),
	)

	triggers := make([]dispatch.Trigger, 0, len(a.cfg.Overlays))
	for _, o := range a.cfg.Overlays {
		if o.Trigger != "" {
			triggers = append(triggers, dispatch.Trigger{ElementID: o.Trigger, Overlay: o.Name})
		}
	}
	a.dispatcher = dispatch.New(page, a,
		dispatch.WithTriggers(triggers...),
		dispatch.WithLogger(a.logger.Named("dispatch")),
	)
	return a, nil
}

// Start restores a pending redirect, begins layout tracking and renders the
// current location while the configured overlays load. Overlay failures are
// logged and never fail startup; a navigation failure is returned.
func (a *App) Start(ctx context.Context) error {
	if redirect, ok := session.ConsumeRedirect(a.session); ok && redirect != a.history.Path() {
		a.logger.Info("restoring redirect", zap.String("path", redirect))
		a.history.Replace(redirect)
	}

	a.layout.Start()
	if err := a.overlays.Register(payment.PanelID); err != nil {
		a.logger.Debug("payment panel not in shell", zap.Error(err))
	}

	// A plain group: a failed navigation must not cancel overlay loads.
	var g errgroup.Group
	for _, o := range a.cfg.Overlays {
		o := o
		g.Go(func() error {
			// Load logs its own failure.
			_ = a.overlays.Load(ctx, o.Name, o.URL)
			return nil
		})
	}
	g.Go(func() error {
		return a.render(ctx)
	})
	return g.Wait()
}

// render navigates to the current location. A superseded navigation is not
// an error for the caller.
func (a *App) render(ctx context.Context) error {
	_, err := a.router.Navigate(ctx, a.history.Path())
	if errors.Is(err, router.ErrStale) {
		return nil
	}
	if err != nil {
		return err
	}
	return nav.Mark(a.page, a.history.Path())
}

// Back is the popstate trigger for a backwards step.
func (a *App) Back(ctx context.Context) error {
	if _, moved := a.history.Back(); !moved {
		return nil
	}
	return a.render(ctx)
}

// Forward is the popstate trigger for a forwards step.
func (a *App) Forward(ctx context.Context) error {
	if _, moved := a.history.Forward(); !moved {
		return nil
	}
	return a.render(ctx)
}

// Click dispatches a click on the first element matching selector.
func (a *App) Click(ctx context.Context, selector string) (dispatch.Outcome, error) {
	node := a.page.Find(selector)
	if node == nil {
		return dispatch.Outcome{}, fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return a.dispatcher.Click(ctx, node), nil
}

// Resize is the viewport resize trigger.
func (a *App) Resize() { a.layout.ViewportResized() }

// ResizeFooter records a new rendered height on the current sticky footer and
// reports the size change to its observers.
func (a *App) ResizeFooter(height float64) bool {
	footer := a.layout.Footer()
	if footer == nil {
		return false
	}
	_ = a.page.Update(func(tx *dom.Tx) error {
		sel := tx.Doc.FindNodes(footer)
		sel.SetAttr("data-height", dom.Pixels(height))
		tx.Touch(sel)
		return nil
	})
	return a.layout.Hub().Resized(footer) > 0
}

// ScrollOverlay reports that an overlay's content scrolled to scrollTop.
func (a *App) ScrollOverlay(name string, scrollTop float64) bool {
	return a.overlays.Scroll(name, scrollTop)
}

// HTML renders the shell document.
func (a *App) HTML() (string, error) { return a.page.HTML() }

// Close stops timers and observers.
func (a *App) Close() {
	a.layout.Stop()
	a.toasts.Close()
	a.share.Close()
}

// Accessors for collaborators that callers and tests inspect.
func (a *App) Page() *dom.Page                  { return a.page }
func (a *App) History() *History                { return a.history }
func (a *App) Viewport() *Viewport              { return a.viewport }
func (a *App) Router() *router.Router           { return a.router }
func (a *App) Overlays() *overlay.Registry      { return a.overlays }
func (a *App) Layout() *layout.Reconciler       { return a.layout }
func (a *App) Payment() *payment.Panel          { return a.panel }
func (a *App) Toasts() *toast.Notifier          { return a.toasts }
func (a *App) Clipboard() share.Clipboard       { return a.clipboard }
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// CurrentPath implements dispatch.Actions.
func (a *App) CurrentPath() string { return a.history.Path() }

// Share implements dispatch.Actions.
func (a *App) Share(ctx context.Context) error { return a.share.Run(ctx) }

// OpenPayment implements dispatch.Actions.
func (a *App) OpenPayment(ctx context.Context, productID string) error {
	return a.panel.Open(ctx, productID)
}

// ClosePayment implements dispatch.Actions.
func (a *App) ClosePayment() { a.panel.Close() }

// SwitchPayment implements dispatch.Actions.
func (a *App) SwitchPayment(ctx context.Context, method string) error {
	return a.panel.SwitchMethod(ctx, payment.Method(method))
}

// OpenOverlay implements dispatch.Actions.
func (a *App) OpenOverlay(name string) bool { return a.overlays.Open(name) }

// CloseOverlay implements dispatch.Actions. Closing the payment panel also
// drops its selection.
func (a *App) CloseOverlay(name string) bool {
	if name == payment.PanelID {
		a.panel.Close()
		return true
	}
	return a.overlays.Close(name)
}

// CloseBackdrop implements dispatch.Actions.
func (a *App) CloseBackdrop(elementID string) bool {
	if elementID == payment.PanelID && a.overlays.Has(elementID) {
		a.panel.Close()
		return true
	}
	return a.overlays.CloseByBackdrop(elementID)
}

// ToggleMenu implements dispatch.Actions. Only the header toggle changes
// state along with the menu.
func (a *App) ToggleMenu() {
	_ = a.page.Update(func(tx *dom.Tx) error {
		sel := tx.Doc.Find(navMenuSelector).AddSelection(tx.Doc.Find(menuToggleSelector).First())
		sel.ToggleClass(activeClass)
		tx.Touch(sel)
		return nil
	})
}

// CloseMenu implements dispatch.Actions. It only acts on an open menu.
func (a *App) CloseMenu() {
	_ = a.page.Update(func(tx *dom.Tx) error {
		menu := tx.Doc.Find(navMenuSelector)
		if !menu.HasClass(activeClass) {
			return nil
		}
		sel := menu.AddSelection(tx.Doc.Find(menuToggleSelector).First())
		sel.RemoveClass(activeClass)
		tx.Touch(sel)
		return nil
	})
}

// MenuOpen reports whether the navigation menu is expanded.
func (a *App) MenuOpen() bool {
	open := false
	a.page.View(func(doc *goquery.Document) {
		open = doc.Find(navMenuSelector).HasClass(activeClass)
	})
	return open
}

// Toast implements dispatch.Actions.
func (a *App) Toast(message string) { a.toasts.Show(message) }

// Follow implements dispatch.Actions.
func (a *App) Follow(ctx context.Context, href string) error {
	a.history.Push(href)
	return a.render(ctx)
}

// ScrollTo implements dispatch.Actions.
func (a *App) ScrollTo(fragment string) bool {
	if a.page.Find(fragment) == nil {
		return false
	}
	a.viewport.ScrollIntoView(fragment)
	return true
}
