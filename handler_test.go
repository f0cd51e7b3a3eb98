package fastboot

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/fastboot/internal/assemble"
	"github.com/cryguy/fastboot/internal/cache"
)

func newTestHandler(t *testing.T, opts HandlerOptions) *Handler {
	t.Helper()
	if opts.App == nil {
		opts.App = testApp(t)
	}
	h, err := Handle(testContext(t), opts)
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandlerRendersPage(t *testing.T) {
	h := newTestHandler(t, HandlerOptions{})

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, htmlContentType, rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	body := rec.Body.String()
	assert.Contains(t, body, `<meta name="my-app/config/environment"`)
	assert.Contains(t, body, "<title>Example</title>")
	assert.Contains(t, body, assemble.BodyStart+"<h1>Hello world!</h1><p>Environment: production</p>"+assemble.BodyEnd)
	assert.NotContains(t, body, "EMBER_CLI_FASTBOOT")
	assert.Contains(t, body, `<script src="/assets/app.js"></script>`)
}

func TestHandlerServesFiles(t *testing.T) {
	h := newTestHandler(t, HandlerOptions{})

	rec := get(t, h, "/assets/app.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
	assert.Contains(t, rec.Body.String(), "font-family")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerKeepsRequestID(t *testing.T) {
	h := newTestHandler(t, HandlerOptions{})

	req := httptest.NewRequest(http.MethodGet, "/assets/app.css", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
}

func TestHandlerResponseFromApplication(t *testing.T) {
	h := newTestHandler(t, HandlerOptions{})

	rec := get(t, h, "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "missing", rec.Header().Get("X-Route"))
	assert.Contains(t, rec.Body.String(), "<p>Not found</p>")
}

func TestHandlerAttributes(t *testing.T) {
	h := newTestHandler(t, HandlerOptions{})

	body := get(t, h, "/?attributes=1").Body.String()
	assert.Contains(t, body, `<html foo="html">`)
	assert.Contains(t, body, `<head foo="head">`)
	assert.Contains(t, body, `<body foo="body">`)
}

func TestHandlerOnRequest(t *testing.T) {
	h := newTestHandler(t, HandlerOptions{
		OnRequest: func(req *Request) {
			req.QueryParams["attributes"] = "1"
		},
	})

	body := get(t, h, "/").Body.String()
	assert.Contains(t, body, `<body foo="body">`)
}

func TestHandlerFallsBackToIndex(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	app := testApp(t)
	h := newTestHandler(t, HandlerOptions{
		App: app,
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})

	rec := get(t, h, "/fail")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(app.Index()), rec.Body.String())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "route failed")
}

func TestHandlerCachesPages(t *testing.T) {
	var renders atomic.Int32
	store := cache.NewMemory(0)
	defer store.Close()
	h := newTestHandler(t, HandlerOptions{
		Cache: time.Minute,
		Store: store,
		OnResult: func(*Result) {
			renders.Add(1)
		},
	})

	first := get(t, h, "/")
	second := get(t, h, "/")
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), renders.Load())
	assert.Equal(t, 1, store.Len())

	get(t, h, "/missing")
	get(t, h, "/missing")
	assert.Equal(t, int32(3), renders.Load())
	assert.Equal(t, 1, store.Len())
}

func TestHandlerIsolated(t *testing.T) {
	h := newTestHandler(t, HandlerOptions{Isolated: true})

	for range 2 {
		rec := get(t, h, "/")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "<h1>Hello world!</h1>")
	}
}

func TestHandlerOverHTTP(t *testing.T) {
	h := newTestHandler(t, HandlerOptions{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	res, err := http.Get(srv.URL + "/defer")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "<p>Message: later</p>")
}

func TestHandleRequiresApp(t *testing.T) {
	_, err := Handle(testContext(t), HandlerOptions{})
	assert.ErrorContains(t, err, "needs an App")
}

func TestNewRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.org/posts?page=2&tag=a&tag=b", nil)
	r.Header.Set("Accept", "text/html")
	r.Header.Set("X-Forwarded-Proto", "https")
	r.AddCookie(&http.Cookie{Name: "session", Value: "s1"})

	req := newRequest(r)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "https:", req.Protocol)
	assert.Equal(t, "/posts", req.Path)
	assert.Equal(t, []string{"example.org"}, req.Headers["Host"])
	assert.Equal(t, []string{"text/html"}, req.Headers["Accept"])
	assert.Equal(t, map[string]string{"session": "s1"}, req.Cookies)
	assert.Equal(t, map[string]string{"page": "2", "tag": "a"}, req.QueryParams)
}
