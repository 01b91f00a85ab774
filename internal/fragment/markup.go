package fragment

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BodyMarkup parses raw as an HTML document and returns the inner markup of
// its body. Head content is dropped.
func BodyMarkup(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("fragment: parse: %w", err)
	}
	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("fragment: render body: %w", err)
	}
	return body, nil
}

// RewriteImages prefixes every relative img src in markup with prefix.
// Scheme-qualified ("http…") and root-relative ("/…") sources are kept.
// markup is parsed as a fragment, so leading style, script or link elements
// stay where they are.
func RewriteImages(markup, prefix string) (string, error) {
	if prefix == "" {
		return markup, nil
	}
	root, err := parseFragment(markup)
	if err != nil {
		return "", err
	}
	root.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if IsRelativeAsset(src) {
			img.SetAttr("src", prefix+src)
		}
	})
	out, err := root.Html()
	if err != nil {
		return "", fmt.Errorf("fragment: render: %w", err)
	}
	return out, nil
}

// ContainsID reports whether markup holds an element with the given id.
func ContainsID(markup, id string) (bool, error) {
	root, err := parseFragment(markup)
	if err != nil {
		return false, err
	}
	found := false
	root.Find("[id]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		found = el.AttrOr("id", "") == id
		return !found
	})
	return found, nil
}

// parseFragment parses markup in a div context, the way innerHTML does, and
// returns a document rooted at that div.
func parseFragment(markup string) (*goquery.Document, error) {
	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), container)
	if err != nil {
		return nil, fmt.Errorf("fragment: parse: %w", err)
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	return goquery.NewDocumentFromNode(container), nil
}

// IsRelativeAsset reports whether src must be resolved against a route prefix.
func IsRelativeAsset(src string) bool {
	return src != "" && !strings.HasPrefix(src, "http") && !strings.HasPrefix(src, "/")
}

// NewSanitizer returns the policy applied to fragments when sanitising is
// enabled. It keeps the structural attributes the shell relies on: ids,
// classes, data-* hooks, inline styles, link targets and image sources.
func NewSanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("id", "class").Globally()
	p.AllowDataAttributes()
	p.AllowStyling()
	p.AllowAttrs("style").Globally()
	p.AllowAttrs("target").OnElements("a")
	p.AllowElements("main", "section", "article", "header", "footer", "nav", "button", "span", "div")
	p.RequireNoFollowOnLinks(false)
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto", "tel")
	return p
}
