package fastboot

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
)

// minCompressSize is the smallest body worth compressing.
const minCompressSize = 1024

// negotiateEncoding picks br over gzip from an Accept-Encoding header.
// Codings with q=0 are refused.
func negotiateEncoding(accept string) string {
	var gz bool
	for _, part := range strings.Split(accept, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				continue
			}
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "br":
			return "br"
		case "gzip":
			gz = true
		}
	}
	if gz {
		return "gzip"
	}
	return ""
}

// compressBody encodes body with encoding ("br" or "gzip").
func compressBody(encoding string, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w interface {
		Write([]byte) (int, error)
		Close() error
	}
	switch encoding {
	case "br":
		w = brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	case "gzip":
		w = gzip.NewWriter(&buf)
	default:
		return body, nil
	}
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBody writes body, compressed when the client accepts it and the
// body is large enough.
func writeBody(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	w.Header().Add("Vary", "Accept-Encoding")
	if len(body) >= minCompressSize && w.Header().Get("Content-Encoding") == "" {
		if enc := negotiateEncoding(r.Header.Get("Accept-Encoding")); enc != "" {
			if out, err := compressBody(enc, body); err == nil {
				w.Header().Set("Content-Encoding", enc)
				body = out
			}
		}
	}
	w.Header().Del("Content-Length")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}
