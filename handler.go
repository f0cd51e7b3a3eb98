package fastboot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/cryguy/fastboot/internal/assemble"
	"github.com/cryguy/fastboot/internal/cache"
	fblog "github.com/cryguy/fastboot/internal/log"
	"github.com/cryguy/fastboot/internal/metrics"
)

const htmlContentType = "text/html; charset=utf-8"

// HandlerOptions configure a Handler.
type HandlerOptions struct {
	App *App

	// Origin is the scheme and host the application sees as its location.
	Origin string

	// Cache is how long rendered pages are kept. Zero disables caching.
	Cache time.Duration

	// Store holds cached pages. Defaults to an in-memory store when Cache
	// is set. The handler does not close a Store it was given.
	Store cache.Store

	// Isolated boots a fresh instance for every request instead of
	// sharing one.
	Isolated bool

	// Instance options applied to every instance the handler boots.
	Instance []Option

	OnRequest func(*Request)
	OnResult  func(*Result)
	OnError   func(error)

	Logger *zerolog.Logger
}

// Handler is an http.Handler that serves an App's files and pre-renders
// every other path, falling back to the plain index document when
// rendering fails.
type Handler struct {
	opts     HandlerOptions
	log      zerolog.Logger
	store    cache.Store
	ownStore bool
	group    singleflight.Group

	mu   sync.Mutex // serializes renders on inst
	inst *Instance
}

type page struct {
	status int
	header http.Header
	body   []byte
}

// Handle creates a Handler. Unless opts.Isolated is set the shared
// instance is booted before Handle returns.
func Handle(ctx context.Context, opts HandlerOptions) (*Handler, error) {
	if opts.App == nil {
		return nil, errors.New("fastboot: handler needs an App")
	}
	h := &Handler{opts: opts, log: fblog.WithComponent("handler")}
	if opts.Logger != nil {
		h.log = *opts.Logger
	}
	if opts.Cache > 0 {
		h.store = opts.Store
		if h.store == nil {
			h.store = cache.NewMemory(opts.Cache / 4)
			h.ownStore = true
		}
	}
	if !opts.Isolated {
		inst, err := Boot(ctx, opts.App, h.instanceOptions()...)
		if err != nil {
			h.closeStore()
			return nil, err
		}
		h.inst = inst
	}
	return h, nil
}

func (h *Handler) instanceOptions() []Option {
	opts := append([]Option(nil), h.opts.Instance...)
	if h.opts.Origin != "" {
		opts = append(opts, WithOrigin(h.opts.Origin))
	}
	return opts
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	id := r.Header.Get("X-Request-Id")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-Id", id)
	log := h.log.With().Str("request_id", id).Str("path", r.URL.Path).Logger()

	p := strings.Trim(r.URL.Path, "/")
	if p != "" {
		if content, ok := h.opts.App.File(p); ok {
			h.opts.App.writeFile(w, r, p, content)
			return
		}
	}

	key := r.URL.RequestURI()
	if h.store != nil {
		entry, err := h.store.Get(r.Context(), key)
		if err != nil {
			log.Warn().Err(err).Msg("cache lookup failed")
		}
		metrics.RecordCache(entry != nil)
		if entry != nil {
			w.Header().Set("Content-Type", entry.ContentType)
			writeBody(w, r, entry.Status, entry.Body)
			return
		}
	}

	var pg *page
	var err error
	if h.store != nil {
		var v any
		v, err, _ = h.group.Do(key, func() (any, error) {
			pg, err := h.render(context.WithoutCancel(r.Context()), r)
			if err == nil && pg.status == http.StatusOK {
				h.put(key, pg, log)
			}
			return pg, err
		})
		if err == nil {
			pg = v.(*page)
		}
	} else {
		pg, err = h.render(r.Context(), r)
	}
	if err != nil {
		log.Warn().Err(err).Msg("render failed, serving index")
		metrics.RecordFallback()
		if h.opts.OnError != nil {
			h.opts.OnError(err)
		}
		w.Header().Set("Content-Type", htmlContentType)
		writeBody(w, r, http.StatusOK, h.opts.App.Index())
		return
	}

	for name, values := range pg.header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set("Content-Type", htmlContentType)
	writeBody(w, r, pg.status, pg.body)
	log.Debug().Int("status", pg.status).Msg("rendered")
}

func (h *Handler) put(key string, pg *page, log zerolog.Logger) {
	err := h.store.Put(context.Background(), key, cache.Entry{
		Status:      pg.status,
		ContentType: htmlContentType,
		Body:        pg.body,
	}, h.opts.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("cache store failed")
	}
}

// newRequest builds the request the application sees from r.
func newRequest(r *http.Request) Request {
	req := Request{
		Method:      http.MethodGet,
		Protocol:    "http:",
		Path:        r.URL.Path,
		Headers:     r.Header.Clone(),
		Cookies:     map[string]string{},
		QueryParams: map[string]string{},
	}
	if req.Headers == nil {
		req.Headers = map[string][]string{}
	}
	req.Headers["Host"] = []string{r.Host}
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		req.Protocol = "https:"
	}
	for _, c := range r.Cookies() {
		req.Cookies[c.Name] = c.Value
	}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			req.QueryParams[name] = values[0]
		}
	}
	return req
}

func (h *Handler) render(ctx context.Context, r *http.Request) (*page, error) {
	req := newRequest(r)
	if h.opts.OnRequest != nil {
		h.opts.OnRequest(&req)
	}

	var res *Result
	var err error
	if h.opts.Isolated {
		var inst *Instance
		inst, err = Boot(ctx, h.opts.App, h.instanceOptions()...)
		if err != nil {
			return nil, err
		}
		defer inst.Close()
		res, err = inst.Visit(ctx, r.URL.RequestURI(), req)
	} else {
		h.mu.Lock()
		res, err = h.inst.Visit(ctx, r.URL.RequestURI(), req)
		h.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	if h.opts.OnResult != nil {
		h.opts.OnResult(res)
	}

	body, err := assemble.Page(h.opts.App.Index(), res.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("fastboot: assembling page: %w", err)
	}
	header := http.Header{}
	for name, value := range res.Headers.Entries() {
		header.Add(name, value)
	}
	header.Del("Content-Length")
	header.Del("Content-Encoding")
	status := res.StatusCode
	if status < 100 || status > 999 {
		status = http.StatusOK
	}
	return &page{status: status, header: header, body: body}, nil
}

// Close releases the shared instance and a cache store the handler
// created itself.
func (h *Handler) Close() {
	if h.inst != nil {
		h.inst.Close()
	}
	h.closeStore()
}

func (h *Handler) closeStore() {
	if h.ownStore && h.store != nil {
		_ = h.store.Close()
	}
}
