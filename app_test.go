package fastboot

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/256dpi/serve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFiles(t *testing.T) map[string]string {
	t.Helper()
	files, err := Files(os.DirFS("testdata"), "app")
	require.NoError(t, err)
	return files
}

func testApp(t *testing.T) *App {
	t.Helper()
	return MustCreate("my-app", testFiles(t))
}

func TestFiles(t *testing.T) {
	files := testFiles(t)
	assert.Contains(t, files, "index.html")
	assert.Contains(t, files, "package.json")
	assert.Contains(t, files, "assets/app.js")
	assert.Contains(t, files, "assets/vendor.js")

	_, err := Files(os.DirFS("testdata"), "nope")
	assert.Error(t, err)
}

func TestCreate(t *testing.T) {
	app := testApp(t)
	assert.Equal(t, "my-app", app.Name())
	assert.Equal(t, map[string]any{
		"modulePrefix": "my-app",
		"environment":  "production",
	}, app.Config())

	_, err := Create("my-app", map[string]string{"app.js": ""})
	assert.ErrorContains(t, err, "missing index.html")

	_, err = Create("other-app", testFiles(t))
	assert.ErrorContains(t, err, "config meta tag")

	_, err = Create("my-app", map[string]string{
		"index.html": `<meta name="my-app/config/environment" content="%7Bnot-json">`,
	})
	assert.ErrorContains(t, err, "decoding config")
}

func TestSetRewritesIndex(t *testing.T) {
	app := testApp(t)
	require.NoError(t, app.Set("apiHost", "https://api.example.org"))
	assert.Equal(t, "https://api.example.org", app.Config()["apiHost"])

	index := string(app.Index())
	assert.Contains(t, index, url.QueryEscape(`"apiHost":"https://api.example.org"`))
	assert.Contains(t, index, `<link rel="stylesheet" href="/assets/app.css">`)

	files := testFiles(t)
	files["index.html"] = index
	reparsed, err := Create("my-app", files)
	require.NoError(t, err)
	assert.Equal(t, app.Config(), reparsed.Config())

	assert.Panics(t, func() { app.MustSet("bad", func() {}) })
}

func TestClone(t *testing.T) {
	app := testApp(t)
	clone := app.Clone()
	clone.MustSet("environment", "staging")

	assert.Equal(t, "production", app.Config()["environment"])
	assert.Equal(t, "staging", clone.Config()["environment"])
	assert.NotEqual(t, string(app.Index()), string(clone.Index()))
}

func TestAppServeHTTP(t *testing.T) {
	app := testApp(t)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/css"))
	assert.Contains(t, rec.Body.String(), "font-family")

	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/some/route", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	assert.Equal(t, string(app.Index()), rec.Body.String())

	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAppServeHTTPUnknownExtension(t *testing.T) {
	files := testFiles(t)
	files["assets/data.unknownext"] = "plain words"
	app := MustCreate("my-app", files)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/data.unknownext", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, serve.MimeTypeByExtension(".unknownext", true), rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
	assert.False(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}

func TestReadManifest(t *testing.T) {
	app := testApp(t)
	app.MustSet("environment", "test")

	m, err := ReadManifest(app)
	require.NoError(t, err)
	assert.Equal(t, "my-app", m.AppName)
	assert.Equal(t, []string{"assets/vendor.js"}, m.VendorFiles)
	assert.Equal(t, []string{"assets/app.js"}, m.AppFiles)
	assert.Equal(t, "index.html", m.HTMLFile)
	assert.JSONEq(t, `{"modulePrefix":"my-app","environment":"test"}`, string(m.Config["my-app"]))

	files := testFiles(t)
	delete(files, "package.json")
	_, err = ReadManifest(MustCreate("my-app", files))
	assert.ErrorContains(t, err, "missing package.json")
}
