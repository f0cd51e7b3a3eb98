package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDir = filepath.Join("..", "..", "testdata", "app")

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Name = "my-app"
	cfg.Dir = testDir
	return cfg
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestServerRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.Cache = time.Minute
	cfg.CacheDB = filepath.Join(t.TempDir(), "pages.db")
	h, cleanup, err := newServer(testContext(t), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer cleanup()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Hello world!</h1>")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fastboot_renders_total")
}

func TestServerStatic(t *testing.T) {
	cfg := testConfig()
	cfg.FastBoot = false
	h, cleanup, err := newServer(testContext(t), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer cleanup()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "EMBER_CLI_FASTBOOT_BODY")
}

func TestServerRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.FastBoot = false
	cfg.RateLimit = 1
	h, cleanup, err := newServer(testContext(t), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer cleanup()

	codes := make([]int, 0, 2)
	for range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.css", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRenderCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"render", "--name", "my-app", "--dir", testDir, "/?attributes=1"})
	require.NoError(t, cmd.ExecuteContext(testContext(t)))
	assert.Contains(t, out.String(), `<body foo="body">`)
	assert.Contains(t, out.String(), "<h1>Hello world!</h1>")

	out.Reset()
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"render", "--name", "my-app", "--dir", testDir, "--json", "/missing"})
	require.NoError(t, cmd.ExecuteContext(testContext(t)))
	var res struct {
		StatusCode  int                 `json:"statusCode"`
		BodyContent string              `json:"bodyContent"`
		Headers     map[string][]string `json:"headers"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 404, res.StatusCode)
	assert.Contains(t, res.BodyContent, "Not found")
	assert.Equal(t, []string{"missing"}, res.Headers["x-route"])
}
