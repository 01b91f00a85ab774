package dom

import (
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// MutationKind classifies a structural change applied through a Tx.
type MutationKind int

const (
	// ChildList reports that an element's children were replaced or reordered.
	ChildList MutationKind = iota + 1
	// Attributes reports an attribute or inline style change.
	Attributes
)

// Mutation describes one change recorded during an Update.
type Mutation struct {
	Kind MutationKind
	// TargetID is the id attribute of the mutated element, empty when it has none.
	TargetID string
	Target   *html.Node
}

// ErrNoBody is returned when a shell document has no <body> element.
var ErrNoBody = errors.New("dom: document has no body")

// Page is the shell document shared by every component. All access goes
// through View and Update so concurrent navigations, overlay loads and layout
// passes never observe a half-applied change.
type Page struct {
	mu  sync.Mutex
	doc *goquery.Document

	lmu       sync.Mutex
	listeners map[int]func([]Mutation)
	nextID    int
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	if doc.Find("body").Length() == 0 {
		return nil, ErrNoBody
	}
	return &Page{doc: doc, listeners: map[int]func([]Mutation){}}, nil
}

// ParseString is Parse over a string.
func ParseString(markup string) (*Page, error) {
	return Parse(strings.NewReader(markup))
}

// View runs fn with read access to the document.
func (p *Page) View(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc)
}

// Update runs fn with write access. Mutations recorded on the Tx are delivered
// to subscribers after the lock is released, in the calling goroutine. When fn
// returns an error the recorded mutations are still delivered because goquery
// edits are applied in place.
func (p *Page) Update(fn func(tx *Tx) error) error {
	p.mu.Lock()
	tx := &Tx{Doc: p.doc}
	err := fn(tx)
	p.mu.Unlock()

	if len(tx.mutations) > 0 {
		p.notify(tx.mutations)
	}
	return err
}

// Subscribe registers fn for mutation batches and returns a function that
// removes it.
func (p *Page) Subscribe(fn func([]Mutation)) (unsubscribe func()) {
	p.lmu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.lmu.Lock()
			delete(p.listeners, id)
			p.lmu.Unlock()
		})
	}
}

func (p *Page) notify(batch []Mutation) {
	p.lmu.Lock()
	fns := make([]func([]Mutation), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.lmu.Unlock()
	for _, fn := range fns {
		fn(batch)
	}
}

// HTML renders the whole document.
func (p *Page) HTML() (string, error) {
	var out string
	var err error
	p.View(func(doc *goquery.Document) {
		out, err = goquery.OuterHtml(doc.Selection)
	})
	return out, err
}

// Find returns the first node matching selector, or nil.
func (p *Page) Find(selector string) *html.Node {
	var n *html.Node
	p.View(func(doc *goquery.Document) {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			n = sel.Get(0)
		}
	})
	return n
}

// Tx is the write handle passed to Update.
type Tx struct {
	Doc       *goquery.Document
	mutations []Mutation
}

// SetInnerHTML replaces the children of every element in sel with markup in a
// single step and records a ChildList mutation per element.
func (tx *Tx) SetInnerHTML(sel *goquery.Selection, markup string) {
	sel.Each(func(_ int, s *goquery.Selection) {
		s.SetHtml(markup)
		tx.record(ChildList, s)
	})
}

// AppendHTML parses markup and appends it to sel.
func (tx *Tx) AppendHTML(sel *goquery.Selection, markup string) {
	sel.Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(markup)
		tx.record(ChildList, s)
	})
}

// Reorder detaches children and re-appends them to parent in the given order.
func (tx *Tx) Reorder(parent *goquery.Selection, children []*goquery.Selection) {
	if parent.Length() == 0 {
		return
	}
	parent.Children().Remove()
	for _, c := range children {
		parent.AppendSelection(c)
	}
	tx.record(ChildList, parent.First())
}

// Touch records an attribute mutation on sel without changing it, for callers
// that edit attributes directly through goquery.
func (tx *Tx) Touch(sel *goquery.Selection) {
	sel.Each(func(_ int, s *goquery.Selection) {
		tx.record(Attributes, s)
	})
}

func (tx *Tx) record(kind MutationKind, s *goquery.Selection) {
	if s.Length() == 0 {
		return
	}
	id, _ := s.Attr("id")
	tx.mutations = append(tx.mutations, Mutation{Kind: kind, TargetID: id, Target: s.Get(0)})
}
