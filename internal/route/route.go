package route

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Kind identifies one of the shell's page types.
type Kind int

const (
	KindRoot Kind = iota + 1
	KindProductList
	KindProductDetail
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindProductList:
		return "product-list"
	case KindProductDetail:
		return "product-detail"
	default:
		return "unknown"
	}
}

// RootPath is the canonical location unknown paths are redirected to.
const RootPath = "/"

// Route is one immutable entry of the route table.
type Route struct {
	Kind Kind
	// Patterns are chi patterns; any of them selects the route.
	Patterns []string
	// Fragment builds the fragment URL from the path parameters.
	Fragment func(params map[string]string) string
	// ImagePrefix builds the prefix applied to relative image sources.
	ImagePrefix func(params map[string]string) string
}

// Match is the result of resolving a path.
type Match struct {
	Kind        Kind
	Path        string
	ProductID   string
	FragmentURL string
	ImagePrefix string
}

// Table matches paths against routes in priority order.
type Table struct {
	routes []compiled
}

type compiled struct {
	route Route
	mux   *chi.Mux
	keys  []string
}

// Default is the shell's route table: root, product list, product detail.
func Default() *Table {
	return New(
		Route{
			Kind:     KindRoot,
			Patterns: []string{"/", "/index.html"},
			Fragment: func(map[string]string) string { return "main.html" },
		},
		Route{
			Kind:     KindProductList,
			Patterns: []string{"/product", "/product/"},
			Fragment: func(map[string]string) string { return "/product/main.html" },
		},
		Route{
			Kind:     KindProductDetail,
			Patterns: []string{"/product/{id:[0-9]+}", "/product/{id:[0-9]+}/"},
			Fragment: func(p map[string]string) string {
				return "/product/" + p["id"] + "/main.html"
			},
			ImagePrefix: func(p map[string]string) string {
				return "/product/" + p["id"] + "/"
			},
		},
	)
}

// New compiles routes. Earlier routes win when several match.
func New(routes ...Route) *Table {
	t := &Table{}
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	for _, r := range routes {
		mux := chi.NewMux()
		for _, p := range r.Patterns {
			mux.Method(http.MethodGet, p, noop)
		}
		t.routes = append(t.routes, compiled{route: r, mux: mux, keys: paramKeys(r.Patterns)})
	}
	return t
}

// Match resolves p to exactly one route. ok is false when nothing matches.
func (t *Table) Match(p string) (Match, bool) {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		p = RootPath
	}
	for _, c := range t.routes {
		rctx := chi.NewRouteContext()
		if !c.mux.Match(rctx, http.MethodGet, p) {
			continue
		}
		params := make(map[string]string, len(c.keys))
		for _, k := range c.keys {
			params[k] = rctx.URLParam(k)
		}
		m := Match{
			Kind:      c.route.Kind,
			Path:      p,
			ProductID: params["id"],
		}
		if c.route.Fragment != nil {
			m.FragmentURL = c.route.Fragment(params)
		}
		if c.route.ImagePrefix != nil {
			m.ImagePrefix = c.route.ImagePrefix(params)
		}
		return m, true
	}
	return Match{}, false
}

// IsDetail reports whether p is a product detail location and returns its id.
// Unlike Match it accepts any path containing /product/<digits>, which is how
// purchase buttons derive the product being bought.
func IsDetail(p string) (string, bool) {
	const marker = "/product/"
	i := strings.Index(p, marker)
	if i < 0 {
		return "", false
	}
	rest := p[i+len(marker):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", false
	}
	return rest[:end], true
}

// Resolve resolves href against the current location path the way a browser
// resolves a pushed history entry, returning only the path.
func Resolve(current, href string) string {
	base, err := url.Parse(current)
	if err != nil || current == "" {
		base = &url.URL{Path: RootPath}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return RootPath
	}
	out := base.ResolveReference(ref).Path
	if out == "" {
		return RootPath
	}
	return out
}

func paramKeys(patterns []string) []string {
	seen := map[string]bool{}
	var keys []string
	for _, p := range patterns {
		for {
			open := strings.IndexByte(p, '{')
			if open < 0 {
				break
			}
			closeIdx := strings.IndexByte(p[open:], '}')
			if closeIdx < 0 {
				break
			}
			name := p[open+1 : open+closeIdx]
			if i := strings.IndexByte(name, ':'); i >= 0 {
				name = name[:i]
			}
			if !seen[name] {
				seen[name] = true
				keys = append(keys, name)
			}
			p = p[open+closeIdx+1:]
		}
	}
	return keys
}
