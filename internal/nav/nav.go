package nav

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"finitefield.org/hanko-shell/internal/dom"
)

const (
	// LinkSelector matches the header menu links.
	LinkSelector = "#nav-menu .nav-link"
	// CurrentClass marks the link of the section being shown.
	CurrentClass = "current"
)

// Mark flags the menu links leading to currentPath or one of its sections
// with CurrentClass and aria-current, and clears the rest.
func Mark(page *dom.Page, currentPath string) error {
	return page.Update(func(tx *dom.Tx) error {
		tx.Doc.Find(LinkSelector).Each(func(_ int, link *goquery.Selection) {
			if IsActive(linkPath(link.AttrOr("href", "")), currentPath) {
				link.AddClass(CurrentClass)
				link.SetAttr("aria-current", "page")
				return
			}
			link.RemoveClass(CurrentClass)
			link.RemoveAttr("aria-current")
		})
		return nil
	})
}

// IsActive reports whether a link to itemPath covers currentPath. The root
// only matches itself; other paths match exactly or on a segment boundary.
func IsActive(itemPath, currentPath string) bool {
	if itemPath == "" {
		return false
	}
	if currentPath == "" {
		currentPath = "/"
	}
	currentPath = normalize(currentPath)
	itemPath = normalize(itemPath)
	if itemPath == "/" {
		return currentPath == "/"
	}
	return currentPath == itemPath || strings.HasPrefix(currentPath, itemPath+"/")
}

// linkPath returns the same-site path of href, or "" for external links.
func linkPath(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.IsAbs() || u.Host != "" || u.Path == "" {
		return ""
	}
	return u.Path
}

func normalize(p string) string {
	clean := path.Clean("/" + p)
	if clean == "/index.html" {
		return "/"
	}
	return clean
}
