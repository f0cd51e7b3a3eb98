package webapi

import (
	"time"

	"github.com/cryguy/fastboot/internal/core"
)

// timersJS keeps timer callbacks on the JS side; the event loop only
// tracks deadlines and calls __timerFire when one is due.
const timersJS = `
(function() {
	var callbacks = {};
	function schedule(fn, delay, args, repeat) {
		if (typeof fn !== 'function') return 0;
		var id = __timerRegister(Math.max(0, Math.floor(Number(delay) || 0)), repeat);
		callbacks[id] = { fn: fn, args: args, repeat: repeat };
		return id;
	}
	globalThis.setTimeout = function(fn, delay) {
		return schedule(fn, delay, Array.prototype.slice.call(arguments, 2), false);
	};
	globalThis.setInterval = function(fn, delay) {
		return schedule(fn, delay, Array.prototype.slice.call(arguments, 2), true);
	};
	globalThis.clearTimeout = globalThis.clearInterval = function(id) {
		if (typeof id !== 'number' || !callbacks[id]) return;
		__timerClear(id);
		delete callbacks[id];
	};
	globalThis.__timerFire = function(id) {
		var cb = callbacks[id];
		if (!cb) return;
		if (!cb.repeat) delete callbacks[id];
		try {
			cb.fn.apply(globalThis, cb.args);
		} catch (e) {
			console.error('Uncaught (in timer)', e);
		}
	};
	globalThis.__timerReset = function() { callbacks = {}; };
})();
`

// SetupTimers installs setTimeout, setInterval and their clear functions
// on top of the host's event loop.
func SetupTimers(rt core.JSRuntime, h *Host) error {
	if err := rt.RegisterFunc("__timerRegister", func(delayMs int, isInterval bool) int {
		return h.Loop.RegisterTimer(time.Duration(delayMs)*time.Millisecond, isInterval)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__timerClear", func(id int) {
		h.Loop.ClearTimer(id)
	}); err != nil {
		return err
	}
	return rt.Eval(timersJS)
}
