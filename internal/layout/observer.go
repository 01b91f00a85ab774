package layout

import (
	"sync"

	"golang.org/x/net/html"
)

// SizeObserver watches one element's box size.
type SizeObserver interface {
	Observe(node *html.Node)
	Disconnect()
}

// ObserverHub is an in-process stand-in for the platform resize observer. The
// owner of the element reports size changes with Resized; every observer
// currently attached to that element is called back.
type ObserverHub struct {
	mu       sync.Mutex
	watchers map[*observer]*html.Node
}

// NewObserverHub returns an empty hub.
func NewObserverHub() *ObserverHub {
	return &ObserverHub{watchers: map[*observer]*html.Node{}}
}

// New creates an observer that calls fn when its element is resized.
func (h *ObserverHub) New(fn func()) SizeObserver {
	return &observer{hub: h, fn: fn}
}

// Resized notifies observers of node. Callbacks run without the hub lock held
// so they may disconnect themselves.
func (h *ObserverHub) Resized(node *html.Node) int {
	h.mu.Lock()
	var fns []func()
	for o, n := range h.watchers {
		if n == node {
			fns = append(fns, o.fn)
		}
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Active returns the number of attached observations.
func (h *ObserverHub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// ActiveOn returns the number of observations attached to node.
func (h *ObserverHub) ActiveOn(node *html.Node) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, watched := range h.watchers {
		if watched == node {
			n++
		}
	}
	return n
}

type observer struct {
	hub *ObserverHub
	fn  func()
}

func (o *observer) Observe(node *html.Node) {
	if node == nil {
		return
	}
	o.hub.mu.Lock()
	o.hub.watchers[o] = node
	o.hub.mu.Unlock()
}

func (o *observer) Disconnect() {
	o.hub.mu.Lock()
	delete(o.hub.watchers, o)
	o.hub.mu.Unlock()
}
