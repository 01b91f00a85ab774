package share

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"finitefield.org/hanko-shell/internal/dom"
)

// Messages shown after a copy attempt.
const (
	CopiedMessage     = "현재 링크가 복사되었습니다.\n공유를 원하시는 곳에 붙여넣어 보세요!😘"
	CopyFailedMessage = "클립보드 복사에 실패했습니다.😭"

	feedbackGlyph   = "❤️"
	defaultFeedback = 2 * time.Second
)

// ErrClipboardUnavailable is returned by a clipboard that refuses writes.
var ErrClipboardUnavailable = errors.New("share: clipboard unavailable")

// Clipboard receives copied text.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// Notifier displays transient messages.
type Notifier interface {
	Show(message string)
}

// Location supplies the link being shared.
type Location interface {
	Href() string
}

// MemoryClipboard keeps the last copied text. A non-nil Err makes writes fail.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
	Err  error
}

// WriteText implements Clipboard.
func (c *MemoryClipboard) WriteText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.text = text
	return nil
}

// Text returns the last copied text.
func (c *MemoryClipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Action copies the current link and gives feedback on the share button.
type Action struct {
	page      *dom.Page
	clipboard Clipboard
	notifier  Notifier
	location  Location
	buttonID  string
	feedback  time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// Option customises an Action.
type Option func(*Action)

// WithFeedback sets how long the heart replaces the share icon.
func WithFeedback(d time.Duration) Option {
	return func(a *Action) {
		if d > 0 {
			a.feedback = d
		}
	}
}

// WithButtonID overrides the share button id.
func WithButtonID(id string) Option {
	return func(a *Action) {
		if id != "" {
			a.buttonID = id
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Action) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAction builds a share Action.
func NewAction(page *dom.Page, clipboard Clipboard, notifier Notifier, location Location, opts ...Option) *Action {
	a := &Action{
		page:      page,
		clipboard: clipboard,
		notifier:  notifier,
		location:  location,
		buttonID:  "share-button",
		feedback:  defaultFeedback,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run copies the current link. Success and failure each produce exactly one
// notification; a failure is also returned to the caller.
func (a *Action) Run(ctx context.Context) error {
	href := a.location.Href()
	if err := a.clipboard.WriteText(ctx, href); err != nil {
		a.logger.Error("clipboard copy failed", zap.String("href", href), zap.Error(err))
		a.notifier.Show(CopyFailedMessage)
		return err
	}
	a.notifier.Show(CopiedMessage)
	a.showFeedback()
	return nil
}

func (a *Action) showFeedback() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setButton(func(tx *dom.Tx) {
		btn := tx.Doc.Find("#" + a.buttonID)
		dom.SetStyle(btn, "background-image", "none")
		btn.SetText(feedbackGlyph)
	})
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.feedback, a.resetButton)
}

func (a *Action) resetButton() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timer = nil
	a.setButton(func(tx *dom.Tx) {
		btn := tx.Doc.Find("#" + a.buttonID)
		btn.Empty()
		dom.SetStyle(btn, "background-image", "")
	})
}

func (a *Action) setButton(fn func(tx *dom.Tx)) {
	_ = a.page.Update(func(tx *dom.Tx) error {
		fn(tx)
		tx.Touch(tx.Doc.Find("#" + a.buttonID))
		return nil
	})
}

// Close cancels a pending button reset.
func (a *Action) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
