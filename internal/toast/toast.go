package toast

import (
	"html"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"finitefield.org/hanko-shell/internal/dom"
)

const (
	// Class marks the notification element.
	Class = "toast-notification"
	// ShowClass is present while the notification is visible.
	ShowClass = "show"

	seqAttr         = "data-toast-seq"
	defaultDuration = 2500 * time.Millisecond
)

// Notifier shows one transient notification at a time. A new message replaces
// the visible one instead of stacking.
type Notifier struct {
	page     *dom.Page
	duration time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	seq    int
	timer  *time.Timer
	shown  int
	closed bool
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithDuration sets how long a notification stays visible.
func WithDuration(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.duration = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// New builds a Notifier writing into page.
func New(page *dom.Page, opts ...Option) *Notifier {
	n := &Notifier{page: page, duration: defaultDuration, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Show displays message, removing any notification already on screen.
func (n *Notifier) Show(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.seq++
	n.shown++
	seq := n.seq
	if n.timer != nil {
		n.timer.Stop()
	}

	_ = n.page.Update(func(tx *dom.Tx) error {
		tx.Doc.Find("." + Class).Remove()
		tx.AppendHTML(tx.Doc.Find("body"), `<div class="`+Class+` `+ShowClass+`" `+seqAttr+`="`+
			strconv.Itoa(seq)+`">`+html.EscapeString(message)+`</div>`)
		return nil
	})
	n.timer = time.AfterFunc(n.duration, func() { n.expire(seq) })
	n.logger.Debug("toast shown", zap.String("message", message))
}

func (n *Notifier) expire(seq int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if seq != n.seq {
		return
	}
	n.timer = nil
	_ = n.page.Update(func(tx *dom.Tx) error {
		el := tx.Doc.Find("." + Class + "[" + seqAttr + `="` + strconv.Itoa(seq) + `"]`)
		el.RemoveClass(ShowClass)
		el.Remove()
		return nil
	})
}

// Shown returns how many notifications were displayed in total.
func (n *Notifier) Shown() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.shown
}

// Close cancels the pending expiry and ignores further messages.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}
