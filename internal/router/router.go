package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"finitefield.org/hanko-shell/internal/dom"
	"finitefield.org/hanko-shell/internal/fragment"
	"finitefield.org/hanko-shell/internal/route"
)

// Class names and ids the router reads or writes on the shell document.
const (
	ContentID        = "main-content"
	ShareButtonID    = "share-button"
	ProductListClass = "product-list"
	StickyFooter     = "sticky-footer"
	SoldOutClass     = "sold-out"
	SoldOutDetail    = "sold-out-detail"
)

var (
	// ErrStale is returned when a newer navigation started while this one was
	// fetching; its result was discarded.
	ErrStale = errors.New("router: navigation superseded")
	// ErrNoContent is returned when the shell has no content container.
	ErrNoContent = errors.New("router: content container missing")
)

var productHref = regexp.MustCompile(`/product/(\d+)`)

// Fetcher returns the body markup of a fragment.
type Fetcher interface {
	FetchBody(ctx context.Context, ref string) (string, error)
}

// Location is the browser location as seen by the router.
type Location interface {
	Path() string
	Replace(path string)
}

// Viewport receives scroll resets.
type Viewport interface {
	ScrollTo(x, y float64)
}

// ProductMeta is derived per render from the sold-out set and the anchors in
// freshly spliced markup.
type ProductMeta struct {
	ID      string
	SoldOut bool
}

// Result describes a completed navigation.
type Result struct {
	Match      route.Match
	Generation uint64
	// Products lists product list entries in their final order.
	Products []ProductMeta
}

// Router turns locations into rendered fragments.
type Router struct {
	page     *dom.Page
	table    *route.Table
	fetcher  Fetcher
	location Location
	viewport Viewport
	soldOut  map[string]struct{}
	logger   *zap.Logger

	generation atomic.Uint64
	last       atomic.Pointer[Result]
}

// Option customises a Router.
type Option func(*Router)

// WithSoldOut replaces the sold-out product id set.
func WithSoldOut(ids ...string) Option {
	return func(r *Router) {
		r.soldOut = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			r.soldOut[id] = struct{}{}
		}
	}
}

// WithTable overrides the route table.
func WithTable(t *route.Table) Option {
	return func(r *Router) {
		if t != nil {
			r.table = t
		}
	}
}

// WithViewport sets the scroll target for detail pages.
func WithViewport(v Viewport) Option {
	return func(r *Router) { r.viewport = v }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds a Router. The sold-out set defaults to product 1.
func New(page *dom.Page, fetcher Fetcher, location Location, opts ...Option) *Router {
	r := &Router{
		page:     page,
		table:    route.Default(),
		fetcher:  fetcher,
		location: location,
		logger:   zap.NewNop(),
	}
	WithSoldOut("1")(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SoldOut reports whether id is in the sold-out set.
func (r *Router) SoldOut(id string) bool {
	_, ok := r.soldOut[id]
	return ok
}

// Last returns the most recent navigation that was applied, if any.
func (r *Router) Last() (Result, bool) {
	res := r.last.Load()
	if res == nil {
		return Result{}, false
	}
	return *res, true
}

// Navigate renders path into the content container. Repeated calls with the
// same path re-fetch and re-render. Unknown paths are replaced with the root
// location once. A fetch failure leaves the previous content in place.
func (r *Router) Navigate(ctx context.Context, path string) (Result, error) {
	gen := r.generation.Add(1)

	m, ok := r.table.Match(path)
	if !ok {
		r.logger.Info("unknown path, redirecting to root", zap.String("path", path))
		r.location.Replace(route.RootPath)
		// The root route always matches, so this cannot recurse further.
		m, ok = r.table.Match(route.RootPath)
		if !ok {
			return Result{}, fmt.Errorf("router: no route for %q", route.RootPath)
		}
	}
	log := r.logger.With(
		zap.String("path", m.Path),
		zap.Stringer("route", m.Kind),
		zap.Uint64("generation", gen),
	)

	body, err := r.fetcher.FetchBody(ctx, m.FragmentURL)
	if err != nil {
		log.Error("error loading content", zap.String("fragment", m.FragmentURL), zap.Error(err))
		return Result{}, fmt.Errorf("router: load %s: %w", m.FragmentURL, err)
	}
	markup, err := fragment.RewriteImages(body, m.ImagePrefix)
	if err != nil {
		log.Error("error rewriting content", zap.Error(err))
		return Result{}, fmt.Errorf("router: rewrite %s: %w", m.FragmentURL, err)
	}

	res := Result{Match: m, Generation: gen}
	err = r.page.Update(func(tx *dom.Tx) error {
		// Checked under the page lock so a newer navigation that already
		// rendered can never be overwritten by this one.
		if r.generation.Load() != gen {
			return ErrStale
		}
		content := tx.Doc.Find("#" + ContentID)
		if content.Length() == 0 {
			return ErrNoContent
		}
		tx.SetInnerHTML(content, markup)
		res.Products = r.reconcile(tx, content, m)
		return nil
	})
	if errors.Is(err, ErrStale) {
		log.Debug("discarding stale navigation", zap.Uint64("current", r.generation.Load()))
		return Result{}, err
	}
	if err != nil {
		log.Error("error rendering content", zap.Error(err))
		return Result{}, err
	}

	if m.Kind == route.KindProductDetail && r.viewport != nil {
		r.viewport.ScrollTo(0, 0)
	}
	r.last.Store(&res)
	log.Debug("navigation rendered", zap.Int("products", len(res.Products)))
	return res, nil
}

// reconcile applies the post-render rules. Order matters: the sold-out rule
// must run after the share visibility rule so it wins on sold-out details.
func (r *Router) reconcile(tx *dom.Tx, content *goquery.Selection, m route.Match) []ProductMeta {
	detail := m.Kind == route.KindProductDetail

	share := tx.Doc.Find("#" + ShareButtonID)
	if detail {
		dom.SetStyle(share, "display", "flex")
	} else {
		dom.SetStyle(share, "display", "none")
	}
	tx.Touch(share)

	if detail && r.SoldOut(m.ProductID) {
		dom.SetStyle(share, "display", "none")
		content.Find("main").First().AddClass(SoldOutDetail)
		content.Find("." + StickyFooter).First().AddClass(SoldOutDetail)
	}

	if m.Kind == route.KindProductList {
		return r.partition(tx, m.Path)
	}
	return nil
}

// partition moves sold-out list items after available ones, keeping the
// source order inside each group. Product links are resolved against
// location before matching.
func (r *Router) partition(tx *dom.Tx, location string) []ProductMeta {
	list := tx.Doc.Find("." + ProductListClass).First()
	if list.Length() == 0 {
		return nil
	}
	var available, soldOut []*goquery.Selection
	var availableMeta, soldOutMeta []ProductMeta
	list.Find("li").Each(func(_ int, item *goquery.Selection) {
		meta, ok := r.productMeta(item, location)
		if ok && meta.SoldOut {
			item.AddClass(SoldOutClass)
			soldOut = append(soldOut, item)
			soldOutMeta = append(soldOutMeta, meta)
			return
		}
		available = append(available, item)
		if ok {
			availableMeta = append(availableMeta, meta)
		}
	})
	tx.Reorder(list, append(available, soldOut...))
	return append(availableMeta, soldOutMeta...)
}

func (r *Router) productMeta(item *goquery.Selection, location string) (ProductMeta, bool) {
	anchor := item.Find("a[href]").First()
	if anchor.Length() == 0 {
		return ProductMeta{}, false
	}
	match := productHref.FindStringSubmatch(route.Resolve(location, anchor.AttrOr("href", "")))
	if match == nil {
		return ProductMeta{}, false
	}
	return ProductMeta{ID: match[1], SoldOut: r.SoldOut(match[1])}, true
}
