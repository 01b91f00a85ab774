package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mw "finitefield.org/hanko-shell/internal/middleware"
	"finitefield.org/hanko-shell/internal/shell"
)

func writeSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"main.html": `<html><body><section><h1>Welcome</h1></section></body></html>`,
		"product/main.html": `<html><body><ul class="product-list">` +
			`<li><a id="p1" href="/product/1">One</a></li>` +
			`<li><a id="p2" href="/product/2">Two</a></li></ul></body></html>`,
		"product/2/main.html": `<html><body><main><h1>Two</h1></main>` +
			`<div class="sticky-footer" data-height="64"><button class="purchase-button">buy</button></div></body></html>`,
		"terms/modal_standard_terms.html": `<div id="standard-terms-modal" class="modal"><span class="close-button">x</span></div>`,
		"terms/modal_special_terms.html":  `<div id="special-terms-modal" class="modal"><span class="close-button">x</span></div>`,
	}
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	return dir
}

// newTestServer serves the site and renders shells against itself.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	var h http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	srv := New(Config{
		SiteDir:       writeSite(t),
		Shell:         shell.Config{BaseURL: ts.URL, HTTPTimeout: 2 * time.Second},
		RenderTimeout: 5 * time.Second,
		Sessions:      mw.NewSessions("test-key", "", false),
	}, zap.NewNop())
	h = srv.Handler()
	return ts
}

func client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))
}

func TestServesSiteFiles(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/product/main.html")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("ETag"))
}

func TestDeepLinkRedirectsThroughSession(t *testing.T) {
	ts := newTestServer(t)
	c := client(t)

	noFollow := *c
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := noFollow.Get(ts.URL + "/product/2")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, renderPrefix+"/", resp.Header.Get("Location"))

	resp, err = c.Get(ts.URL + renderPrefix + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "/product/2", resp.Header.Get(PathHeader))

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "Two", strings.TrimSpace(doc.Find("#main-content h1").Text()))
	require.Equal(t, 1, doc.Find("#standard-terms-modal").Length())

	// The redirect is consumed once.
	resp2, err := c.Get(ts.URL + renderPrefix + "/")
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, "/", resp2.Header.Get(PathHeader))
}

func TestRenderPath(t *testing.T) {
	ts := newTestServer(t)
	resp, err := client(t).Get(ts.URL + renderPrefix + "/product")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	require.Equal(t, 2, doc.Find(".product-list li").Length())
	require.True(t, doc.Find("#p1").Closest("li").HasClass("sold-out"))
}

func postClick(t *testing.T, ts *httptest.Server, body string) (*http.Response, ClickResponse) {
	t.Helper()
	resp, err := client(t).Post(ts.URL+clickPath, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out ClickResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestClickFollowsLink(t *testing.T) {
	ts := newTestServer(t)
	resp, out := postClick(t, ts, `{"path":"/product","selector":"#p2"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "anchor", out.Rule)
	require.True(t, out.Handled)
	require.True(t, out.PreventDefault)
	require.Equal(t, "/product/2", out.Path)
	require.Contains(t, out.HTML, "<h1>Two</h1>")
}

func TestClickSoldOutStays(t *testing.T) {
	ts := newTestServer(t)
	_, out := postClick(t, ts, `{"path":"/product","selector":"#p1"}`)
	require.True(t, out.PreventDefault)
	require.Equal(t, "/product", out.Path)
	require.Contains(t, out.HTML, "판매가 종료")
}

func TestClickRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := postClick(t, ts, `{"selector":`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postClick(t, ts, `{"path":"/","selector":" "}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postClick(t, ts, `{"path":"/","selector":"#nope","extra":1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postClick(t, ts, `{"path":"/","selector":"#nope"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
