package shell

import "sync"

// Viewport records where the shell was last scrolled. Headless rendering has
// no scroll position, so callers and tests read it back from here.
type Viewport struct {
	mu     sync.Mutex
	x, y   float64
	anchor string
	resets int
}

// ScrollTo implements router.Viewport.
func (v *Viewport) ScrollTo(x, y float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.x, v.y = x, y
	v.anchor = ""
	if x == 0 && y == 0 {
		v.resets++
	}
}

// ScrollIntoView records that the element matching fragment was brought to
// the top.
func (v *Viewport) ScrollIntoView(fragment string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.anchor = fragment
}

// Position returns the last absolute scroll offset.
func (v *Viewport) Position() (x, y float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.x, v.y
}

// Anchor returns the fragment last scrolled into view.
func (v *Viewport) Anchor() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.anchor
}

// Resets counts scrolls to the document origin.
func (v *Viewport) Resets() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resets
}
