package dispatch

import (
	"context"
	"errors"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"finitefield.org/hanko-shell/internal/dom"
	"finitefield.org/hanko-shell/internal/route"
)

// Messages shown when a click cannot be honoured.
const (
	PaymentUnavailableMessage = "결제 정보를 불러올 수 없습니다."
	SoldOutMessage            = "해당 상품은 판매가 종료되었습니다."
)

// DefaultTriggers are the overlay open buttons of the stock shell.
var DefaultTriggers = []Trigger{
	{ElementID: "open-standard-terms", Overlay: "standard-terms-modal"},
	{ElementID: "open-special-terms", Overlay: "special-terms-modal"},
}

// Actions are the side effects a click may cause. The shell application
// context implements them.
type Actions interface {
	CurrentPath() string
	Share(ctx context.Context) error
	OpenPayment(ctx context.Context, productID string) error
	ClosePayment()
	SwitchPayment(ctx context.Context, method string) error
	OpenOverlay(name string) bool
	CloseOverlay(name string) bool
	CloseBackdrop(elementID string) bool
	ToggleMenu()
	CloseMenu()
	Toast(message string)
	// Follow pushes href onto the history and renders it.
	Follow(ctx context.Context, href string) error
	ScrollTo(fragment string) bool
}

// Outcome reports what a click did.
type Outcome struct {
	Rule           string
	Handled        bool
	PreventDefault bool
	Err            error
}

// Rule is one entry of the ordered rule list. Match inspects the intent only;
// Apply runs the side effects.
type Rule struct {
	Name  string
	Match func(in Intent) bool
	Apply func(ctx context.Context, in Intent, act Actions) Outcome
}

// Dispatcher routes clicks on the shell document to actions. Rules are tried
// in order and the first match wins.
type Dispatcher struct {
	page     *dom.Page
	actions  Actions
	triggers []Trigger
	rules    []Rule
	logger   *zap.Logger
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithTriggers replaces the overlay open triggers.
func WithTriggers(triggers ...Trigger) Option {
	return func(d *Dispatcher) {
		d.triggers = append([]Trigger(nil), triggers...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New builds a Dispatcher with the default rule order.
func New(page *dom.Page, actions Actions, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		page:     page,
		actions:  actions,
		triggers: DefaultTriggers,
		rules:    Rules(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Click dispatches a click on target, which must be a node of the page.
func (d *Dispatcher) Click(ctx context.Context, target *html.Node) Outcome {
	if target == nil {
		return Outcome{}
	}
	var in Intent
	d.page.View(func(doc *goquery.Document) {
		in = Extract(doc.FindNodes(target), d.triggers)
	})
	return d.Dispatch(ctx, in)
}

// Dispatch applies the first rule matching in.
func (d *Dispatcher) Dispatch(ctx context.Context, in Intent) Outcome {
	for _, r := range d.rules {
		if !r.Match(in) {
			continue
		}
		out := r.Apply(ctx, in, d.actions)
		out.Rule = r.Name
		out.Handled = true
		if out.Err != nil {
			d.logger.Error("click handler failed", zap.String("rule", r.Name), zap.Error(out.Err))
		} else {
			d.logger.Debug("click handled", zap.String("rule", r.Name))
		}
		return out
	}
	return Outcome{}
}

// Rules returns the default rule list in priority order.
func Rules() []Rule {
	return []Rule{
		{
			Name:  "share",
			Match: func(in Intent) bool { return in.Share },
			Apply: func(ctx context.Context, _ Intent, act Actions) Outcome {
				return Outcome{PreventDefault: true, Err: act.Share(ctx)}
			},
		},
		{
			Name:  "payment",
			Match: func(in Intent) bool { return in.Purchase || in.PaymentClose || in.HasPaymentTab },
			Apply: applyPayment,
		},
		{
			Name:  "overlay-open",
			Match: func(in Intent) bool { return in.OpenOverlay != "" },
			Apply: func(_ context.Context, in Intent, act Actions) Outcome {
				act.OpenOverlay(in.OpenOverlay)
				return Outcome{PreventDefault: true}
			},
		},
		{
			Name:  "overlay-close",
			Match: func(in Intent) bool { return in.CloseButton },
			Apply: func(_ context.Context, in Intent, act Actions) Outcome {
				if in.CloseOverlay != "" {
					act.CloseOverlay(in.CloseOverlay)
				}
				return Outcome{}
			},
		},
		{
			Name:  "menu-toggle",
			Match: func(in Intent) bool { return in.MenuToggle },
			Apply: func(_ context.Context, _ Intent, act Actions) Outcome {
				act.ToggleMenu()
				return Outcome{}
			},
		},
		{
			Name:  "anchor",
			Match: func(in Intent) bool { return in.Anchor != nil },
			Apply: applyAnchor,
		},
		{
			Name:  "backdrop",
			Match: func(in Intent) bool { return in.Backdrop != "" },
			Apply: func(_ context.Context, in Intent, act Actions) Outcome {
				act.CloseBackdrop(in.Backdrop)
				return Outcome{}
			},
		},
	}
}

// applyPayment handles purchase, close and tab clicks. A click may carry
// several of them and each is honoured.
func applyPayment(ctx context.Context, in Intent, act Actions) Outcome {
	var errs []error
	if in.Purchase {
		id, ok := route.IsDetail(act.CurrentPath())
		if !ok {
			act.Toast(PaymentUnavailableMessage)
			return Outcome{}
		}
		errs = append(errs, act.OpenPayment(ctx, id))
	}
	if in.PaymentClose {
		act.ClosePayment()
	}
	if in.HasPaymentTab && in.PaymentTab != "" {
		errs = append(errs, act.SwitchPayment(ctx, in.PaymentTab))
	}
	return Outcome{Err: errors.Join(errs...)}
}

func applyAnchor(ctx context.Context, in Intent, act Actions) Outcome {
	a := in.Anchor
	if a.InSoldOut {
		act.Toast(SoldOutMessage)
		return Outcome{PreventDefault: true}
	}
	if a.Internal() {
		return Outcome{PreventDefault: true, Err: act.Follow(ctx, a.Href)}
	}
	if frag, ok := a.Fragment(); ok {
		act.ScrollTo(frag)
		return Outcome{PreventDefault: true}
	}
	if a.NavLink && !a.DropdownToggle {
		act.CloseMenu()
	}
	return Outcome{}
}
