package fragment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/main.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<!doctype html><html><head><title>t</title></head><body><main><h1>Home</h1></main></body></html>`))
	})
	mux.HandleFunc("/unsafe.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div id="x" class="card"><script>alert(1)</script><img src="a.png"></div></body></html>`))
	})
	mux.HandleFunc("/broken.html", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchBodyExtractsBody(t *testing.T) {
	t.Parallel()
	srv := newSite(t)

	l, err := NewLoader(srv.URL)
	require.NoError(t, err)

	body, err := l.FetchBody(context.Background(), "main.html")
	require.NoError(t, err)
	require.Equal(t, "<main><h1>Home</h1></main>", body)
}

func TestFetchReportsStatus(t *testing.T) {
	t.Parallel()
	srv := newSite(t)

	l, err := NewLoader(srv.URL)
	require.NoError(t, err)

	_, err = l.Fetch(context.Background(), "/broken.html")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusInternalServerError, se.StatusCode)
	require.Equal(t, "boom", se.Body)

	_, err = l.Fetch(context.Background(), "/missing.html")
	require.True(t, IsNotFound(err))
}

func TestFetchTransportError(t *testing.T) {
	t.Parallel()
	srv := newSite(t)
	base := srv.URL
	srv.Close()

	l, err := NewLoader(base)
	require.NoError(t, err)
	_, err = l.Fetch(context.Background(), "main.html")
	require.Error(t, err)
	require.False(t, IsNotFound(err))
}

func TestNewLoaderRejectsRelativeBase(t *testing.T) {
	t.Parallel()

	_, err := NewLoader("/site")
	require.Error(t, err)
}

func TestSanitizerStripsScripts(t *testing.T) {
	t.Parallel()
	srv := newSite(t)

	l, err := NewLoader(srv.URL, WithSanitizer(NewSanitizer()))
	require.NoError(t, err)

	body, err := l.FetchBody(context.Background(), "/unsafe.html")
	require.NoError(t, err)
	require.NotContains(t, body, "<script")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, 1, doc.Find("div#x.card").Length())
	require.Equal(t, "a.png", doc.Find("img").AttrOr("src", ""))
}

func TestRewriteImages(t *testing.T) {
	t.Parallel()

	markup := `<img src="photo.png"><img src="/logo.png"><img src="https://cdn.example.com/x.png"><img src="http://a/b.png"><img alt="none">`
	out, err := RewriteImages(markup, "/product/3/")
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)
	var srcs []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		srcs = append(srcs, s.AttrOr("src", ""))
	})
	require.Equal(t, []string{
		"/product/3/photo.png",
		"/logo.png",
		"https://cdn.example.com/x.png",
		"http://a/b.png",
		"",
	}, srcs)
}

func TestRewriteImagesWithoutPrefixIsIdentity(t *testing.T) {
	t.Parallel()

	out, err := RewriteImages(`<img src="a.png">`, "")
	require.NoError(t, err)
	require.Equal(t, `<img src="a.png">`, out)
}

func TestRewriteImagesKeepsLeadingHeadElements(t *testing.T) {
	t.Parallel()

	markup := `<style>.x{color:red}</style><script>var a=1</script><link rel="stylesheet" href="d.css"><main><img src="a.png"></main>`
	out, err := RewriteImages(markup, "/product/2/")
	require.NoError(t, err)
	require.Equal(t,
		`<style>.x{color:red}</style><script>var a=1</script><link rel="stylesheet" href="d.css"/><main><img src="/product/2/a.png"/></main>`,
		out)
}

func TestContainsID(t *testing.T) {
	t.Parallel()

	found, err := ContainsID(`<style>p{}</style><div id="refund-modal"><p id="inner"></p></div>`, "inner")
	require.NoError(t, err)
	require.True(t, found)

	found, err = ContainsID(`<div id="other"></div>`, "refund-modal")
	require.NoError(t, err)
	require.False(t, found)
}
