package webapi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/cryguy/fastboot/internal/core"
)

// URLParts is the decomposition the JS URL class is built from.
type URLParts struct {
	Href     string `json:"href"`
	Protocol string `json:"protocol"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Hostname string `json:"hostname"`
	Port     string `json:"port"`
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
	Hash     string `json:"hash"`
	Origin   string `json:"origin"`
}

// ParseURL resolves raw against base, when given, and splits the result.
func ParseURL(raw, base string) (URLParts, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return URLParts{}, fmt.Errorf("invalid URL %q", raw)
	}
	if base != "" {
		b, err := url.Parse(base)
		if err != nil || !b.IsAbs() {
			return URLParts{}, fmt.Errorf("invalid base URL %q", base)
		}
		u = b.ResolveReference(u)
	}
	if !u.IsAbs() {
		return URLParts{}, fmt.Errorf("invalid URL %q", raw)
	}
	p := URLParts{
		Protocol: u.Scheme + ":",
		Host:     u.Host,
		Hostname: u.Hostname(),
		Port:     u.Port(),
		Pathname: u.EscapedPath(),
		Origin:   "null",
	}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	if u.Opaque != "" {
		p.Pathname = u.Opaque
	}
	if (u.Scheme == "http" || u.Scheme == "https") && p.Pathname == "" {
		u.Path = "/"
		p.Pathname = "/"
	}
	if u.RawQuery != "" {
		p.Search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		p.Hash = "#" + u.EscapedFragment()
	}
	if u.Host != "" {
		p.Origin = p.Protocol + "//" + p.Host
	}
	p.Href = u.String()
	return p, nil
}

const urlJS = `
(function() {
	class URLSearchParams {
		constructor(init) {
			this._entries = [];
			if (init instanceof URLSearchParams) {
				this._entries = init._entries.map(function(e) { return [e[0], e[1]]; });
			} else if (Array.isArray(init)) {
				for (var i = 0; i < init.length; i++) this._entries.push([String(init[i][0]), String(init[i][1])]);
			} else if (init && typeof init === 'object') {
				var self = this;
				Object.keys(init).forEach(function(k) { self._entries.push([k, String(init[k])]); });
			} else if (init !== undefined && init !== null) {
				var s = String(init);
				if (s.charAt(0) === '?') s = s.slice(1);
				var self2 = this;
				s.split('&').forEach(function(pair) {
					if (!pair) return;
					var idx = pair.indexOf('=');
					var k = idx < 0 ? pair : pair.slice(0, idx);
					var v = idx < 0 ? '' : pair.slice(idx + 1);
					self2._entries.push([decode(k), decode(v)]);
				});
			}
		}
		_update() { if (this._url) this._url._setSearch(this.toString()); }
		append(k, v) { this._entries.push([String(k), String(v)]); this._update(); }
		set(k, v) {
			k = String(k);
			var i = this._entries.findIndex(function(e) { return e[0] === k; });
			if (i < 0) { this._entries.push([k, String(v)]); }
			else {
				this._entries[i][1] = String(v);
				this._entries = this._entries.filter(function(e, j) { return j <= i || e[0] !== k; });
			}
			this._update();
		}
		delete(k) { this._entries = this._entries.filter(function(e) { return e[0] !== k; }); this._update(); }
		get(k) { var e = this._entries.find(function(e) { return e[0] === k; }); return e ? e[1] : null; }
		getAll(k) { return this._entries.filter(function(e) { return e[0] === k; }).map(function(e) { return e[1]; }); }
		has(k) { return this._entries.some(function(e) { return e[0] === k; }); }
		sort() { this._entries.sort(function(a, b) { return a[0] < b[0] ? -1 : a[0] > b[0] ? 1 : 0; }); this._update(); }
		forEach(cb, thisArg) { var self = this; this._entries.forEach(function(e) { cb.call(thisArg, e[1], e[0], self); }); }
		entries() { return this._entries.map(function(e) { return [e[0], e[1]]; })[Symbol.iterator](); }
		keys() { return this._entries.map(function(e) { return e[0]; })[Symbol.iterator](); }
		values() { return this._entries.map(function(e) { return e[1]; })[Symbol.iterator](); }
		get size() { return this._entries.length; }
		toString() {
			return this._entries.map(function(e) { return encode(e[0]) + '=' + encode(e[1]); }).join('&');
		}
		[Symbol.iterator]() { return this.entries(); }
	}
	function decode(s) { return decodeURIComponent(s.replace(/\+/g, ' ')); }
	function encode(s) { return encodeURIComponent(s).replace(/%20/g, '+'); }

	class URL {
		constructor(input, base) {
			this._load(__parseURL(String(input), base === undefined ? '' : String(base)));
		}
		_load(json) {
			var p = JSON.parse(json);
			if (p.error) throw new TypeError(p.error);
			this._p = p;
			if (!this._search) {
				this._search = new URLSearchParams(p.search);
				this._search._url = this;
			} else {
				this._search._entries = new URLSearchParams(p.search)._entries;
			}
		}
		_setSearch(qs) {
			var p = this._p;
			var href = p.protocol + '//' + (p.username ? p.username + (p.password ? ':' + p.password : '') + '@' : '') +
				p.host + p.pathname + (qs ? '?' + qs : '') + p.hash;
			this._p = JSON.parse(__parseURL(href, ''));
		}
		get href() { return this._p.href; }
		set href(v) { this._load(__parseURL(String(v), '')); }
		get protocol() { return this._p.protocol; }
		get username() { return this._p.username; }
		get password() { return this._p.password; }
		get host() { return this._p.host; }
		get hostname() { return this._p.hostname; }
		get port() { return this._p.port; }
		get pathname() { return this._p.pathname; }
		set pathname(v) { this._load(__parseURL(String(v), this._p.href)); }
		get search() { return this._p.search; }
		set search(v) {
			v = String(v);
			if (v.charAt(0) === '?') v = v.slice(1);
			this._setSearch(v);
			this._search._entries = new URLSearchParams(v)._entries;
		}
		get hash() { return this._p.hash; }
		set hash(v) {
			v = String(v);
			this._load(__parseURL((v && v.charAt(0) !== '#' ? '#' : '') + v, this._p.href));
		}
		get origin() { return this._p.origin; }
		get searchParams() { return this._search; }
		toString() { return this.href; }
		toJSON() { return this.href; }
		static canParse(input, base) {
			try { new URL(input, base); return true; } catch (e) { return false; }
		}
	}
	globalThis.URL = URL;
	globalThis.URLSearchParams = URLSearchParams;
})();
`

// SetupURL installs URL and URLSearchParams, with parsing done by net/url.
func SetupURL(rt core.JSRuntime, _ *Host) error {
	if err := rt.RegisterFunc("__parseURL", func(raw, base string) string {
		p, err := ParseURL(raw, base)
		if err != nil {
			b, _ := json.Marshal(map[string]string{"error": err.Error()})
			return string(b)
		}
		b, _ := json.Marshal(p)
		return string(b)
	}); err != nil {
		return err
	}
	if err := rt.Eval(urlJS); err != nil {
		return fmt.Errorf("evaluating url.js: %w", err)
	}
	return nil
}
