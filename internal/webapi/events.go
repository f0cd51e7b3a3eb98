package webapi

import (
	"fmt"

	"github.com/cryguy/fastboot/internal/core"
)

// eventsJS defines Event, CustomEvent, EventTarget, DOMException,
// AbortSignal and AbortController.
const eventsJS = `
class DOMException extends Error {
	constructor(message, name) {
		super(message || '');
		this.name = name || 'Error';
		this.message = message || '';
	}
}

class Event {
	constructor(type, init) {
		if (arguments.length === 0) throw new TypeError('Event: type is required');
		this.type = String(type);
		this.bubbles = !!(init && init.bubbles);
		this.cancelable = !!(init && init.cancelable);
		this.defaultPrevented = false;
		this.target = null;
		this.currentTarget = null;
		this.timeStamp = performance.now();
		this._stop = false;
	}
	preventDefault() { if (this.cancelable) this.defaultPrevented = true; }
	stopPropagation() {}
	stopImmediatePropagation() { this._stop = true; }
}

class CustomEvent extends Event {
	constructor(type, init) {
		super(type, init);
		this.detail = init && init.detail !== undefined ? init.detail : null;
	}
}

class EventTarget {
	constructor() { this._listeners = Object.create(null); }
	addEventListener(type, callback, options) {
		if (!callback) return;
		var list = this._listeners[type] || (this._listeners[type] = []);
		for (var i = 0; i < list.length; i++) if (list[i].callback === callback) return;
		list.push({ callback: callback, once: !!(options && typeof options === 'object' && options.once) });
	}
	removeEventListener(type, callback) {
		var list = this._listeners[type];
		if (!list) return;
		this._listeners[type] = list.filter(function(l) { return l.callback !== callback; });
	}
	dispatchEvent(event) {
		event.target = this;
		event.currentTarget = this;
		var handler = this['on' + event.type];
		if (typeof handler === 'function') handler.call(this, event);
		var list = (this._listeners[event.type] || []).slice();
		for (var i = 0; i < list.length && !event._stop; i++) {
			if (list[i].once) this.removeEventListener(event.type, list[i].callback);
			var cb = list[i].callback;
			if (typeof cb === 'function') cb.call(this, event);
			else if (cb && typeof cb.handleEvent === 'function') cb.handleEvent(event);
		}
		event.currentTarget = null;
		return !event.defaultPrevented;
	}
}

class AbortSignal extends EventTarget {
	constructor() {
		super();
		this.aborted = false;
		this.reason = undefined;
		this.onabort = null;
	}
	throwIfAborted() { if (this.aborted) throw this.reason; }
	_abort(reason) {
		if (this.aborted) return;
		this.aborted = true;
		this.reason = reason !== undefined ? reason : new DOMException('This operation was aborted', 'AbortError');
		this.dispatchEvent(new Event('abort'));
	}
	static abort(reason) {
		var s = new AbortSignal();
		s._abort(reason);
		return s;
	}
	static timeout(ms) {
		var s = new AbortSignal();
		setTimeout(function() { s._abort(new DOMException('The operation timed out.', 'TimeoutError')); }, ms);
		return s;
	}
	static any(signals) {
		var s = new AbortSignal();
		for (var i = 0; i < signals.length; i++) {
			if (signals[i].aborted) { s._abort(signals[i].reason); return s; }
		}
		signals.forEach(function(src) {
			src.addEventListener('abort', function() { s._abort(src.reason); });
		});
		return s;
	}
}

class AbortController {
	constructor() { this.signal = new AbortSignal(); }
	abort(reason) { this.signal._abort(reason); }
}

globalThis.DOMException = DOMException;
globalThis.Event = Event;
globalThis.CustomEvent = CustomEvent;
globalThis.EventTarget = EventTarget;
globalThis.AbortSignal = AbortSignal;
globalThis.AbortController = AbortController;
`

// SetupEvents installs the event and abort classes. The window itself
// becomes an event target so applications can listen on it.
func SetupEvents(rt core.JSRuntime, _ *Host) error {
	if err := rt.Eval(eventsJS); err != nil {
		return fmt.Errorf("evaluating events.js: %w", err)
	}
	return rt.Eval(`(function() {
		var target = new EventTarget();
		['addEventListener', 'removeEventListener', 'dispatchEvent'].forEach(function(m) {
			globalThis[m] = target[m].bind(target);
		});
	})();`)
}
