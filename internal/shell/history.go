package shell

import (
	"strings"
	"sync"

	"finitefield.org/hanko-shell/internal/route"
)

// History is the session history of the shell: the current location plus
// back and forward entries. It satisfies the router and share location
// contracts.
type History struct {
	origin string

	mu      sync.Mutex
	entries []string
	index   int
}

// NewHistory starts a history at path. origin is prefixed to paths by Href.
func NewHistory(origin, path string) *History {
	if path == "" {
		path = route.RootPath
	}
	return &History{origin: strings.TrimRight(origin, "/"), entries: []string{path}}
}

// Path returns the current path.
func (h *History) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index]
}

// Href returns the absolute current location.
func (h *History) Href() string {
	return h.origin + h.Path()
}

// Push resolves href against the current path, drops forward entries and
// makes it current. It returns the new path.
func (h *History) Push(href string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	next := route.Resolve(h.entries[h.index], href)
	h.entries = append(h.entries[:h.index+1], next)
	h.index++
	return next
}

// Replace swaps the current entry for path.
func (h *History) Replace(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.index] = route.Resolve(h.entries[h.index], path)
}

// Back moves one entry back and reports whether it moved.
func (h *History) Back() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == 0 {
		return h.entries[0], false
	}
	h.index--
	return h.entries[h.index], true
}

// Forward moves one entry forward and reports whether it moved.
func (h *History) Forward() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == len(h.entries)-1 {
		return h.entries[h.index], false
	}
	h.index++
	return h.entries[h.index], true
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
