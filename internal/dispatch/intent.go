package dispatch

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors probed when extracting an intent.
const (
	shareSelector        = "#share-button"
	purchaseSelector     = ".purchase-button"
	paymentCloseSelector = ".payment-modal-close"
	paymentTabSelector   = ".payment-tab"
	closeButtonSelector  = ".close-button"
	modalSelector        = ".modal"
	menuToggleSelector   = ".menu-toggle"
	soldOutSelector      = ".sold-out"
)

// Anchor describes the closest link around the click target.
type Anchor struct {
	Href           string
	Target         string
	InSoldOut      bool
	NavLink        bool
	DropdownToggle bool
}

// Internal reports whether the link is a same-site page the shell renders.
func (a Anchor) Internal() bool {
	h := a.Href
	return h != "" &&
		!strings.HasPrefix(h, "#") &&
		!strings.HasPrefix(h, "http") &&
		!strings.HasPrefix(h, "tel:") &&
		!strings.HasPrefix(h, "mailto:") &&
		a.Target != "_blank"
}

// Fragment returns the in-page target of a "#id" link.
func (a Anchor) Fragment() (string, bool) {
	if strings.HasPrefix(a.Href, "#") && len(a.Href) > 1 {
		return a.Href, true
	}
	return "", false
}

// Intent is everything the dispatcher needs to know about one click,
// extracted once from the document.
type Intent struct {
	Share        bool
	Purchase     bool
	PaymentClose bool
	// PaymentTab is the data-payment value of the clicked tab.
	PaymentTab    string
	HasPaymentTab bool
	// OpenOverlay names the overlay whose trigger was clicked.
	OpenOverlay string
	// CloseOverlay is the id of the modal whose close button was clicked.
	CloseOverlay string
	CloseButton  bool
	MenuToggle   bool
	Anchor       *Anchor
	// Backdrop is the id of a modal clicked outside its content.
	Backdrop string
}

// Trigger binds an element id to the overlay it opens.
type Trigger struct {
	ElementID string
	Overlay   string
}

// Extract classifies target. The first matching trigger wins.
func Extract(target *goquery.Selection, triggers []Trigger) Intent {
	var in Intent
	if target.Length() == 0 {
		return in
	}
	closest := func(sel string) *goquery.Selection { return target.Closest(sel) }

	in.Share = closest(shareSelector).Length() > 0
	in.Purchase = closest(purchaseSelector).Length() > 0
	in.PaymentClose = closest(paymentCloseSelector).Length() > 0
	if tab := closest(paymentTabSelector); tab.Length() > 0 {
		in.HasPaymentTab = true
		in.PaymentTab = tab.AttrOr("data-payment", "")
	}
	for _, tr := range triggers {
		if closest("#"+tr.ElementID).Length() > 0 {
			in.OpenOverlay = tr.Overlay
			break
		}
	}
	if btn := closest(closeButtonSelector); btn.Length() > 0 {
		in.CloseButton = true
		in.CloseOverlay = btn.Closest(modalSelector).AttrOr("id", "")
	}
	in.MenuToggle = closest(menuToggleSelector).Length() > 0
	if a := closest("a"); a.Length() > 0 {
		in.Anchor = &Anchor{
			Href:           a.AttrOr("href", ""),
			Target:         a.AttrOr("target", ""),
			InSoldOut:      a.Closest(soldOutSelector).Length() > 0,
			NavLink:        a.HasClass("nav-link"),
			DropdownToggle: a.HasClass("dropdown-toggle"),
		}
	}
	if target.Is(modalSelector) {
		in.Backdrop = target.AttrOr("id", "")
	}
	return in
}
