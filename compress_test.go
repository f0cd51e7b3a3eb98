package fastboot

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiateEncoding(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"identity":          "",
		"gzip":              "gzip",
		"gzip, deflate, br": "br",
		"br;q=0, gzip":      "gzip",
		"GZIP;q=0.5":        "gzip",
		"br;q=0, gzip;q=0":  "",
		"deflate, br;q=0.1": "br",
	}
	for accept, want := range cases {
		assert.Equal(t, want, negotiateEncoding(accept), accept)
	}
}

func TestWriteBodyCompresses(t *testing.T) {
	body := []byte(strings.Repeat("<p>Hello world!</p>", 200))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept-Encoding", "br")
	rec := httptest.NewRecorder()
	writeBody(rec, r, http.StatusOK, body)
	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	out, err := io.ReadAll(brotli.NewReader(rec.Body))
	require.NoError(t, err)
	assert.Equal(t, body, out)

	r.Header.Set("Accept-Encoding", "gzip")
	rec = httptest.NewRecorder()
	writeBody(rec, r, http.StatusOK, body)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	out, err = io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, body, out)
}

func TestWriteBodySkipsSmallAndHead(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept-Encoding", "br")
	rec := httptest.NewRecorder()
	writeBody(rec, r, http.StatusNotFound, []byte("small"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "small", rec.Body.String())

	r = httptest.NewRequest(http.MethodHead, "/", nil)
	rec = httptest.NewRecorder()
	writeBody(rec, r, http.StatusOK, bytes.Repeat([]byte("x"), 4096))
	assert.Zero(t, rec.Body.Len())
}
