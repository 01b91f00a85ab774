package payment

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/require"

	"finitefield.org/hanko-shell/internal/dom"
	"finitefield.org/hanko-shell/internal/fragment"
)

const panelShell = `<html><body>
<div id="payment-modal" class="modal">
  <div class="payment-tabs">
    <button class="payment-tab" data-payment="kakao">kakao</button>
    <button class="payment-tab active" data-payment="toss">toss</button>
  </div>
  <img id="payment-image-kakao"><img id="payment-image-toss">
  <a id="payment-link-button" class="visible" href="#"></a>
  <span class="payment-modal-close">x</span>
</div>
</body></html>`

const kakaoLink = "https://qr.kakaopay.com/Ej8abc"

func qrPNG(t *testing.T, text string) []byte {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, matrix))
	return buf.Bytes()
}

func blankPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = uint8(color.White.Y >> 8)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type recordingOverlays struct {
	mu     sync.Mutex
	opened []string
	closed []string
}

func (o *recordingOverlays) Open(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, name)
	return true
}

func (o *recordingOverlays) Close(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = append(o.closed, name)
	return true
}

type fixture struct {
	page     *dom.Page
	overlays *recordingOverlays
	panel    *Panel
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	assets := map[string][]byte{
		"/product/2/kakao_income.png": qrPNG(t, kakaoLink),
		"/product/2/toss_income.png":  blankPNG(t),
		"/product/4/kakao_income.png": []byte("not an image"),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, ok := assets[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)

	page, err := dom.ParseString(panelShell)
	require.NoError(t, err)
	loader, err := fragment.NewLoader(srv.URL)
	require.NoError(t, err)
	overlays := &recordingOverlays{}
	return &fixture{page: page, overlays: overlays, panel: NewPanel(page, overlays, loader, opts...)}
}

func (f *fixture) state() (kakaoSrc, tossSrc, kakaoDisplay, tossDisplay, activeTab string) {
	f.page.View(func(doc *goquery.Document) {
		kakao := doc.Find("#" + ImageID(MethodKakao))
		toss := doc.Find("#" + ImageID(MethodToss))
		kakaoSrc = kakao.AttrOr("src", "")
		tossSrc = toss.AttrOr("src", "")
		kakaoDisplay = dom.Display(kakao)
		tossDisplay = dom.Display(toss)
		activeTab = doc.Find("." + TabClass + "." + ActiveClass).AttrOr("data-payment", "")
	})
	return
}

func TestOpenSeedsImagesAndDecodesDefaultMethod(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.NoError(t, f.panel.Open(context.Background(), "2"))

	kakaoSrc, tossSrc, kakaoDisplay, tossDisplay, active := f.state()
	require.Equal(t, "/product/2/kakao_income.png", kakaoSrc)
	require.Equal(t, "/product/2/toss_income.png", tossSrc)
	require.Equal(t, "block", kakaoDisplay)
	require.Equal(t, "none", tossDisplay)
	require.Equal(t, "kakao", active)
	require.Equal(t, []string{PanelID}, f.overlays.opened)

	link, visible := f.panel.Link()
	require.True(t, visible)
	require.Equal(t, kakaoLink, link)

	sel, ok := f.panel.Selection()
	require.True(t, ok)
	require.Equal(t, Selection{ProductID: "2", Method: MethodKakao}, sel)
}

func TestSwitchMethodWithoutCodeHidesLink(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.panel.Open(context.Background(), "2"))

	require.NoError(t, f.panel.SwitchMethod(context.Background(), MethodToss))
	_, _, kakaoDisplay, tossDisplay, active := f.state()
	require.Equal(t, "none", kakaoDisplay)
	require.Equal(t, "block", tossDisplay)
	require.Equal(t, "toss", active)

	_, visible := f.panel.Link()
	require.False(t, visible)

	require.NoError(t, f.panel.SwitchMethod(context.Background(), MethodKakao))
	_, visible = f.panel.Link()
	require.True(t, visible)
}

func TestDecodeFailuresKeepLinkHidden(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// Missing image.
	require.NoError(t, f.panel.Open(context.Background(), "3"))
	_, visible := f.panel.Link()
	require.False(t, visible)

	// Undecodable bytes.
	require.NoError(t, f.panel.Open(context.Background(), "4"))
	_, visible = f.panel.Link()
	require.False(t, visible)
}

func TestSwitchWithoutSelectionIsIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.NoError(t, f.panel.SwitchMethod(context.Background(), MethodToss))
	_, _, _, _, active := f.state()
	require.Equal(t, "toss", active, "markup untouched")
	require.Error(t, f.panel.SwitchMethod(context.Background(), Method("paypal")))
}

func TestCloseDropsSelection(t *testing.T) {
	t.Parallel()
	f := newFixture(t, WithDecoder(DecoderFunc(func(image.Image) (string, error) {
		return "https://toss.me/shop", nil
	})))
	require.NoError(t, f.panel.Open(context.Background(), "2"))
	f.panel.Close()

	_, ok := f.panel.Selection()
	require.False(t, ok)
	require.Equal(t, []string{PanelID}, f.overlays.closed)
	require.NoError(t, f.panel.SwitchMethod(context.Background(), MethodToss))
}

func TestOpenWithoutPanelMarkup(t *testing.T) {
	t.Parallel()
	page, err := dom.ParseString(`<html><body></body></html>`)
	require.NoError(t, err)
	overlays := &recordingOverlays{}
	p := NewPanel(page, overlays, nil)

	require.NoError(t, p.Open(context.Background(), "2"))
	require.Empty(t, overlays.opened)
	require.Error(t, p.Open(context.Background(), ""))
}

func TestQRDecoderRejectsBlankImage(t *testing.T) {
	t.Parallel()
	img, err := png.Decode(bytes.NewReader(blankPNG(t)))
	require.NoError(t, err)

	_, err = NewQRDecoder().Decode(img)
	require.ErrorIs(t, err, ErrNoCode)
}
