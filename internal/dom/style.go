package dom

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Style returns the inline style value of prop on the first element of sel.
func Style(sel *goquery.Selection, prop string) string {
	for _, decl := range parseStyle(sel.AttrOr("style", "")) {
		if decl.prop == prop {
			return decl.value
		}
	}
	return ""
}

// SetStyle sets an inline style declaration on every element of sel. An empty
// value removes the declaration, matching element.style.prop = ''.
func SetStyle(sel *goquery.Selection, prop, value string) {
	sel.Each(func(_ int, s *goquery.Selection) {
		decls := parseStyle(s.AttrOr("style", ""))
		out := decls[:0]
		found := false
		for _, d := range decls {
			if d.prop == prop {
				found = true
				if value == "" {
					continue
				}
				d.value = value
			}
			out = append(out, d)
		}
		if !found && value != "" {
			out = append(out, declaration{prop: prop, value: value})
		}
		if len(out) == 0 {
			s.RemoveAttr("style")
			return
		}
		s.SetAttr("style", formatStyle(out))
	})
}

// Display reports the inline display value, "" when unset.
func Display(sel *goquery.Selection) string {
	return Style(sel, "display")
}

// Pixels formats v as a CSS pixel length.
func Pixels(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

// ParsePixels reads a "<n>px" length. Bare numbers are accepted.
func ParsePixels(v string) (float64, bool) {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

type declaration struct {
	prop  string
	value string
}

func parseStyle(raw string) []declaration {
	var out []declaration
	for _, part := range strings.Split(raw, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.TrimSpace(prop)
		if prop == "" {
			continue
		}
		out = append(out, declaration{prop: prop, value: strings.TrimSpace(value)})
	}
	return out
}

func formatStyle(decls []declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.prop+": "+d.value)
	}
	return strings.Join(parts, "; ") + ";"
}
