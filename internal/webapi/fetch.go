package webapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/cryguy/fastboot/internal/core"
	"github.com/cryguy/fastboot/internal/eventloop"
)

// ErrPrivateAddress is returned for fetches to loopback, private or
// link-local destinations when they are not allowed.
var ErrPrivateAddress = errors.New("fetch to private addresses is not allowed")

// forbiddenHeaders are never forwarded from the sandbox.
var forbiddenHeaders = map[string]bool{
	"host":                true,
	"connection":          true,
	"keep-alive":          true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"te":                  true,
	"trailer":             true,
	"proxy-authorization": true,
	"proxy-connection":    true,
	"x-forwarded-for":     true,
	"x-forwarded-host":    true,
	"x-forwarded-proto":   true,
	"x-real-ip":           true,
}

// fetchJS defines Headers, Response, Request, the node-fetch error
// types and fetch itself. Pending promises are keyed by the event
// loop's fetch id; the loop settles them with __fetchResolve and
// __fetchReject.
const fetchJS = `
(function() {
	class Headers {
		constructor(init) {
			this._list = [];
			if (!init) return;
			var self = this;
			if (init instanceof Headers || (typeof init.forEach === 'function' && !Array.isArray(init))) {
				init.forEach(function(v, k) { self.append(k, v); });
			} else if (Array.isArray(init)) {
				init.forEach(function(p) { self.append(p[0], p[1]); });
			} else {
				Object.keys(init).forEach(function(k) { self.append(k, init[k]); });
			}
		}
		append(k, v) { this._list.push([String(k).toLowerCase(), String(v)]); }
		set(k, v) { this.delete(k); this.append(k, v); }
		delete(k) { k = String(k).toLowerCase(); this._list = this._list.filter(function(p) { return p[0] !== k; }); }
		get(k) {
			k = String(k).toLowerCase();
			var vs = this._list.filter(function(p) { return p[0] === k; }).map(function(p) { return p[1]; });
			return vs.length ? vs.join(', ') : null;
		}
		getSetCookie() { return this._list.filter(function(p) { return p[0] === 'set-cookie'; }).map(function(p) { return p[1]; }); }
		has(k) { k = String(k).toLowerCase(); return this._list.some(function(p) { return p[0] === k; }); }
		_names() {
			var seen = {};
			return this._list.map(function(p) { return p[0]; }).filter(function(n) {
				if (seen[n]) return false;
				seen[n] = true;
				return true;
			}).sort();
		}
		forEach(cb, thisArg) {
			var self = this;
			this._names().forEach(function(n) { cb.call(thisArg, self.get(n), n, self); });
		}
		entries() { var self = this; return this._names().map(function(n) { return [n, self.get(n)]; })[Symbol.iterator](); }
		keys() { return this._names()[Symbol.iterator](); }
		values() { var self = this; return this._names().map(function(n) { return self.get(n); })[Symbol.iterator](); }
		[Symbol.iterator]() { return this.entries(); }
	}

	function toBytes(body) {
		if (body === undefined || body === null) return null;
		if (body instanceof Uint8Array) return body;
		if (body instanceof ArrayBuffer) return new Uint8Array(body);
		if (ArrayBuffer.isView(body)) return new Uint8Array(body.buffer, body.byteOffset, body.byteLength);
		if (body instanceof URLSearchParams) return new TextEncoder().encode(body.toString());
		if (typeof body === 'object') return new TextEncoder().encode(JSON.stringify(body));
		return new TextEncoder().encode(String(body));
	}

	class Body {
		_initBody(body) {
			this._bytes = toBytes(body);
			this.bodyUsed = false;
		}
		_consume() {
			if (this.bodyUsed) return Promise.reject(new TypeError('body used already'));
			this.bodyUsed = true;
			return Promise.resolve(this._bytes || new Uint8Array(0));
		}
		get body() { return this._bytes; }
		arrayBuffer() { return this._consume().then(function(b) { return b.slice().buffer; }); }
		text() { return this._consume().then(function(b) { return new TextDecoder().decode(b); }); }
		json() { return this.text().then(JSON.parse); }
	}

	class Response extends Body {
		constructor(body, init) {
			super();
			init = init || {};
			this._initBody(body);
			this.status = init.status === undefined ? 200 : init.status;
			this.statusText = init.statusText || '';
			this.headers = new Headers(init.headers);
			this.url = init.url || '';
			this.redirected = !!init.redirected;
			this.type = 'basic';
		}
		get ok() { return this.status >= 200 && this.status < 300; }
		clone() {
			if (this.bodyUsed) throw new TypeError('body used already');
			return new Response(this._bytes, this);
		}
		static json(data, init) {
			var r = new Response(JSON.stringify(data), init);
			if (!r.headers.has('content-type')) r.headers.set('content-type', 'application/json');
			return r;
		}
		static error() { var r = new Response(null, { status: 0 }); r.type = 'error'; return r; }
		static redirect(url, status) { return new Response(null, { status: status || 302, headers: { location: String(url) } }); }
	}

	class Request extends Body {
		constructor(input, init) {
			super();
			init = init || {};
			var src = input instanceof Request ? input : null;
			this.url = src ? src.url : String(input);
			this.method = String(init.method || (src && src.method) || 'GET').toUpperCase();
			this.headers = new Headers(init.headers || (src && src.headers));
			this.redirect = init.redirect || (src && src.redirect) || 'follow';
			this.signal = init.signal || (src && src.signal) || null;
			this._initBody(init.body !== undefined ? init.body : src ? src._bytes : null);
		}
		clone() { return new Request(this); }
	}

	class FetchError extends Error {
		constructor(message, type) {
			super(message);
			this.name = 'FetchError';
			this.type = type || 'system';
		}
	}
	class AbortError extends Error {
		constructor(message) {
			super(message || 'The operation was aborted.');
			this.name = 'AbortError';
			this.type = 'aborted';
		}
	}

	var pending = {};

	globalThis.fetch = function(input, init) {
		var req;
		try {
			req = new Request(input, init);
		} catch (e) {
			return Promise.reject(e);
		}
		if (req.signal && req.signal.aborted) {
			return Promise.reject(new DOMException('The operation was aborted.', 'AbortError'));
		}
		var pairs = [];
		req.headers._list.forEach(function(p) { pairs.push([p[0], p[1]]); });
		var args = JSON.stringify({
			url: req.url,
			method: req.method,
			headers: pairs,
			body: req._bytes ? __bytesToB64(req._bytes) : '',
			redirect: req.redirect
		});
		return new Promise(function(resolve, reject) {
			var id = __fetchStart(args);
			pending[id] = { resolve: resolve, reject: reject };
			if (req.signal) {
				req.signal.addEventListener('abort', function() {
					if (!pending[id]) return;
					delete pending[id];
					__fetchAbort(id);
					reject(new DOMException('The operation was aborted.', 'AbortError'));
				});
			}
		});
	};

	globalThis.__fetchResolve = function(id, status, statusText, headersJSON, bodyB64, redirected, finalURL) {
		var p = pending[id];
		if (!p) return;
		delete pending[id];
		try {
			p.resolve(new Response(bodyB64 ? __b64ToBytes(bodyB64) : null, {
				status: status,
				statusText: statusText,
				headers: JSON.parse(headersJSON),
				url: finalURL,
				redirected: redirected
			}));
		} catch (e) {
			p.reject(e);
		}
	};

	globalThis.__fetchReject = function(id, message) {
		var p = pending[id];
		if (!p) return;
		delete pending[id];
		p.reject(new FetchError(message));
	};

	globalThis.__fetchReset = function() { pending = {}; };

	globalThis.Headers = Headers;
	globalThis.Response = Response;
	globalThis.Request = Request;
	globalThis.FetchError = FetchError;
	globalThis.AbortError = AbortError;
})();
`

type fetchArgs struct {
	URL      string      `json:"url"`
	Method   string      `json:"method"`
	Headers  [][2]string `json:"headers"`
	Body     string      `json:"body"`
	Redirect string      `json:"redirect"`
}

// SetupFetch installs fetch. Requests run on their own goroutines and
// report back through the host's event loop; every fetch of a render is
// cancelled when the render ends.
func SetupFetch(rt core.JSRuntime, h *Host) error {
	if err := rt.RegisterFunc("__fetchStart", func(argsJSON string) (string, error) {
		var args fetchArgs
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("fetch: parsing arguments: %w", err)
		}
		req, err := h.newFetchRequest(args)
		if err != nil {
			return "", err
		}
		rs := h.State()
		if !rs.AcquireFetch() {
			return "", fmt.Errorf("fetch: exceeded maximum of %d requests per render", h.Config.MaxFetchRequests)
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.Config.FetchTimeout)
		id := h.Loop.BeginFetch()
		rs.RegisterFetchCancel(id, cancel)
		go func() {
			defer cancel()
			result := h.doFetch(req.WithContext(ctx), args.Redirect)
			rs.RemoveFetchCancel(id)
			h.Loop.CompleteFetch(id, result)
		}()
		return id, nil
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__fetchAbort", func(id string) {
		h.State().CallFetchCancel(id)
	}); err != nil {
		return err
	}
	return rt.Eval(fetchJS)
}

func (h *Host) newFetchRequest(args fetchArgs) (*http.Request, error) {
	base, err := url.Parse(h.Config.Origin)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid origin: %w", err)
	}
	ref, err := url.Parse(args.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid URL %q", args.URL)
	}
	target := base.ResolveReference(ref)
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("fetch: unsupported scheme %q", target.Scheme)
	}
	if !h.Config.AllowPrivateNet && IsPrivateHostname(target.Hostname()) {
		return nil, ErrPrivateAddress
	}

	var body io.Reader
	if args.Body != "" {
		raw, err := base64.StdEncoding.DecodeString(args.Body)
		if err != nil {
			return nil, fmt.Errorf("fetch: decoding body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	method := args.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequest(method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	for _, kv := range args.Headers {
		if forbiddenHeaders[strings.ToLower(kv[0])] {
			continue
		}
		req.Header.Add(kv[0], kv[1])
	}
	return req, nil
}

func (h *Host) doFetch(req *http.Request, redirect string) eventloop.FetchResult {
	client := *h.Client
	switch redirect {
	case "manual":
		client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	case "error":
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return errors.New("redirect mode is 'error'")
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(req.Context().Err(), context.Canceled) {
			return eventloop.FetchResult{Err: errors.New("the operation was aborted")}
		}
		return eventloop.FetchResult{Err: fmt.Errorf("request to %s failed: %w", req.URL, err)}
	}
	defer resp.Body.Close()

	limit := int64(h.Config.MaxResponseBytes)
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return eventloop.FetchResult{Err: fmt.Errorf("reading body of %s: %w", req.URL, err)}
	}
	if int64(len(body)) > limit {
		return eventloop.FetchResult{Err: fmt.Errorf("response from %s exceeds %d bytes", req.URL, limit)}
	}

	var pairs [][2]string
	for name, values := range resp.Header {
		for _, v := range values {
			pairs = append(pairs, [2]string{strings.ToLower(name), v})
		}
	}
	headersJSON, _ := json.Marshal(pairs)
	if pairs == nil {
		headersJSON = []byte("[]")
	}

	finalURL := req.URL.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return eventloop.FetchResult{
		Status:      resp.StatusCode,
		StatusText:  strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))),
		HeadersJSON: string(headersJSON),
		BodyB64:     base64.StdEncoding.EncodeToString(body),
		Redirected:  finalURL != req.URL.String(),
		FinalURL:    finalURL,
	}
}

// newFetchClient returns the client used for sandbox fetches. Unless
// private networks are allowed, every dial re-checks the resolved
// address so DNS cannot redirect a public name to a private address.
func newFetchClient(cfg core.EngineConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	client := &http.Client{Transport: transport}
	if cfg.AllowPrivateNet {
		return client
	}
	transport.DialContext = safeDialContext
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		if IsPrivateHostname(req.URL.Hostname()) {
			return ErrPrivateAddress
		}
		return nil
	}
	return client
}

func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if !IsPrivateIP(ip.IP) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ip.IP.String(), port))
		}
	}
	return nil, ErrPrivateAddress
}

// IsPrivateHostname reports whether hostname is localhost or a literal
// private address. Names are checked again after resolution at dial time.
func IsPrivateHostname(hostname string) bool {
	if hostname == "" {
		return true
	}
	lower := strings.ToLower(strings.TrimSuffix(hostname, "."))
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return true
	}
	if ip := net.ParseIP(strings.Trim(lower, "[]")); ip != nil {
		return IsPrivateIP(ip)
	}
	return false
}

var privateRanges = func() []*net.IPNet {
	var out []*net.IPNet
	for _, cidr := range []string{
		"0.0.0.0/8", "10.0.0.0/8", "100.64.0.0/10", "127.0.0.0/8",
		"169.254.0.0/16", "172.16.0.0/12", "192.0.0.0/24", "192.168.0.0/16",
		"198.18.0.0/15", "240.0.0.0/4",
		"::/128", "::1/128", "fc00::/7", "fe80::/10",
	} {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid CIDR: " + cidr)
		}
		out = append(out, n)
	}
	return out
}()

// IsPrivateIP reports whether ip is loopback, private, link-local or
// otherwise not publicly routable.
func IsPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, n := range privateRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
