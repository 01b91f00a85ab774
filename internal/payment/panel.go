package payment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // register decoders for payment images
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"finitefield.org/hanko-shell/internal/dom"
)

// Method is a payment provider tab.
type Method string

const (
	MethodKakao Method = "kakao"
	MethodToss  Method = "toss"
)

// Methods lists the tabs in display order; the first is the default.
var Methods = []Method{MethodKakao, MethodToss}

// Element ids and classes of the panel markup.
const (
	PanelID       = "payment-modal"
	LinkButtonID  = "payment-link-button"
	TabClass      = "payment-tab"
	ActiveClass   = "active"
	VisibleClass  = "visible"
	productIDAttr = "data-product-id"
)

// ImageID returns the element id of method's QR image.
func ImageID(m Method) string { return "payment-image-" + string(m) }

// ImageSource returns the QR image path of method for productID.
func ImageSource(productID string, m Method) string {
	return "/product/" + productID + "/" + string(m) + "_income.png"
}

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// Selection is the product and method chosen while the panel is open.
type Selection struct {
	ProductID string
	Method    Method
}

// ImageFetcher loads image bytes.
type ImageFetcher interface {
	FetchBytes(ctx context.Context, ref string) ([]byte, error)
}

// Overlays opens and closes the panel overlay.
type Overlays interface {
	Open(name string) bool
	Close(name string) bool
}

// Panel is the payment overlay. It decodes the selected method's QR image and
// exposes the decoded link on the payment link button.
type Panel struct {
	page     *dom.Page
	overlays Overlays
	images   ImageFetcher
	decoder  Decoder
	logger   *zap.Logger

	mu        sync.Mutex
	selection *Selection
	decodeGen uint64
}

// Option customises a Panel.
type Option func(*Panel)

// WithDecoder overrides the QR decoder.
func WithDecoder(d Decoder) Option {
	return func(p *Panel) {
		if d != nil {
			p.decoder = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Panel) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPanel builds a Panel.
func NewPanel(page *dom.Page, overlays Overlays, images ImageFetcher, opts ...Option) *Panel {
	p := &Panel{
		page:     page,
		overlays: overlays,
		images:   images,
		decoder:  NewQRDecoder(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Selection returns the current selection, if the panel is open.
func (p *Panel) Selection() (Selection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selection == nil {
		return Selection{}, false
	}
	return *p.selection, true
}

// Open seeds both method images from productID, selects the first method,
// decodes its code and shows the panel. A shell without panel markup makes
// Open a no-op.
func (p *Panel) Open(ctx context.Context, productID string) error {
	if productID == "" {
		return fmt.Errorf("payment: empty product id")
	}
	present := false
	_ = p.page.Update(func(tx *dom.Tx) error {
		panel := tx.Doc.Find("#" + PanelID)
		if panel.Length() == 0 {
			return nil
		}
		present = true
		panel.SetAttr(productIDAttr, productID)
		for _, m := range Methods {
			tx.Doc.Find("#"+ImageID(m)).SetAttr("src", ImageSource(productID, m))
		}
		p.show(tx, MethodKakao)
		tx.Touch(panel)
		return nil
	})
	if !present {
		p.logger.Debug("payment panel missing")
		return nil
	}

	p.mu.Lock()
	p.selection = &Selection{ProductID: productID, Method: MethodKakao}
	p.mu.Unlock()

	p.overlays.Open(PanelID)
	p.decode(ctx, ImageSource(productID, MethodKakao))
	return nil
}

// SwitchMethod shows m's image and re-decodes. It is ignored when the panel
// has no selection.
func (p *Panel) SwitchMethod(ctx context.Context, m Method) error {
	if !m.Valid() {
		return fmt.Errorf("payment: unknown method %q", m)
	}
	p.mu.Lock()
	if p.selection == nil {
		p.mu.Unlock()
		return nil
	}
	p.selection.Method = m
	productID := p.selection.ProductID
	p.mu.Unlock()

	var src string
	_ = p.page.Update(func(tx *dom.Tx) error {
		src = tx.Doc.Find("#"+ImageID(m)).AttrOr("src", ImageSource(productID, m))
		p.show(tx, m)
		tx.Touch(tx.Doc.Find("#" + PanelID))
		return nil
	})
	p.decode(ctx, src)
	return nil
}

// Close hides the panel and drops the selection.
func (p *Panel) Close() {
	p.mu.Lock()
	p.selection = nil
	p.decodeGen++
	p.mu.Unlock()
	p.overlays.Close(PanelID)
}

// show displays m's image, hides the others and moves the active tab marker.
func (p *Panel) show(tx *dom.Tx, m Method) {
	panel := tx.Doc.Find("#" + PanelID)
	for _, other := range Methods {
		display := "none"
		if other == m {
			display = "block"
		}
		dom.SetStyle(tx.Doc.Find("#"+ImageID(other)), "display", display)
	}
	panel.Find("." + TabClass).RemoveClass(ActiveClass)
	panel.Find("." + TabClass + `[data-payment="` + string(m) + `"]`).AddClass(ActiveClass)
}

// decode resets the payment link and, when src holds a QR code, points the
// link at its payload. Failures are logged; the link stays hidden.
func (p *Panel) decode(ctx context.Context, src string) {
	p.mu.Lock()
	p.decodeGen++
	gen := p.decodeGen
	p.mu.Unlock()

	_ = p.page.Update(func(tx *dom.Tx) error {
		btn := tx.Doc.Find("#" + LinkButtonID)
		btn.RemoveClass(VisibleClass)
		tx.Touch(btn)
		return nil
	})
	if src == "" {
		return
	}

	log := p.logger.With(zap.String("image", src))
	raw, err := p.images.FetchBytes(ctx, src)
	if err != nil {
		log.Error("failed to load image for QR code decoding", zap.Error(err))
		return
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		log.Error("failed to decode image for QR code decoding", zap.Error(err))
		return
	}
	link, err := p.decoder.Decode(img)
	if err != nil {
		log.Info("no QR code found in image", zap.Error(err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.decodeGen {
		log.Debug("discarding stale QR decode")
		return
	}
	_ = p.page.Update(func(tx *dom.Tx) error {
		btn := tx.Doc.Find("#" + LinkButtonID)
		btn.SetAttr("href", link)
		btn.AddClass(VisibleClass)
		tx.Touch(btn)
		return nil
	})
}

// Link returns the payment link when it is visible.
func (p *Panel) Link() (string, bool) {
	var href string
	var visible bool
	p.page.View(func(doc *goquery.Document) {
		btn := doc.Find("#" + LinkButtonID)
		href = btn.AttrOr("href", "")
		visible = btn.HasClass(VisibleClass)
	})
	return href, visible
}
