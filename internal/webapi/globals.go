package webapi

import (
	"fmt"
	"net/url"
	"time"

	"github.com/cryguy/fastboot/internal/core"
)

// globalsJS defines the window aliases and simple globals.
const globalsJS = `
globalThis.window = globalThis;
globalThis.self = globalThis;
globalThis.global = globalThis;

globalThis.performance = {
	timeOrigin: Date.now(),
	now: function() { return __performanceNow(); }
};

globalThis.queueMicrotask = function(fn) {
	if (typeof fn !== 'function') throw new TypeError('queueMicrotask: callback must be a function');
	Promise.resolve().then(fn);
};

globalThis.structuredClone = (function() {
	function clone(value, seen) {
		if (value === null || typeof value !== 'object') {
			if (typeof value === 'function' || typeof value === 'symbol') {
				throw new DOMException('value could not be cloned', 'DataCloneError');
			}
			return value;
		}
		if (seen.has(value)) return seen.get(value);
		var out;
		if (value instanceof Date) return new Date(value.getTime());
		if (value instanceof RegExp) return new RegExp(value.source, value.flags);
		if (value instanceof ArrayBuffer) return value.slice(0);
		if (ArrayBuffer.isView(value)) {
			return new value.constructor(value.buffer.slice(value.byteOffset, value.byteOffset + value.byteLength));
		}
		if (value instanceof Map) {
			out = new Map();
			seen.set(value, out);
			value.forEach(function(v, k) { out.set(clone(k, seen), clone(v, seen)); });
			return out;
		}
		if (value instanceof Set) {
			out = new Set();
			seen.set(value, out);
			value.forEach(function(v) { out.add(clone(v, seen)); });
			return out;
		}
		out = Array.isArray(value) ? [] : {};
		seen.set(value, out);
		Object.keys(value).forEach(function(k) { out[k] = clone(value[k], seen); });
		return out;
	}
	return function structuredClone(value) { return clone(value, new Map()); };
})();

globalThis.navigator = {
	userAgent: 'fastboot',
	language: 'en-US',
	languages: ['en-US'],
	onLine: true
};
`

// SetupGlobals installs window/self aliases, performance, queueMicrotask,
// structuredClone, navigator and a read-only location for the origin.
func SetupGlobals(rt core.JSRuntime, h *Host) error {
	start := time.Now()
	if err := rt.RegisterFunc("__performanceNow", func() float64 {
		return float64(time.Since(start).Nanoseconds()) / 1e6
	}); err != nil {
		return err
	}
	if err := rt.Eval(globalsJS); err != nil {
		return fmt.Errorf("evaluating globals.js: %w", err)
	}

	origin, err := url.Parse(h.Config.Origin)
	if err != nil || origin.Host == "" {
		return fmt.Errorf("invalid origin %q", h.Config.Origin)
	}
	return rt.Eval(fmt.Sprintf(`globalThis.location = Object.freeze({
		href: %[1]s + '/',
		origin: %[1]s,
		protocol: %[2]s,
		host: %[3]s,
		hostname: %[4]s,
		port: %[5]s,
		pathname: '/',
		search: '',
		hash: '',
		toString: function() { return this.href; }
	});`,
		core.JSString(origin.Scheme+"://"+origin.Host),
		core.JSString(origin.Scheme+":"),
		core.JSString(origin.Host),
		core.JSString(origin.Hostname()),
		core.JSString(origin.Port())))
}
