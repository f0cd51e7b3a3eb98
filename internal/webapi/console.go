package webapi

import (
	"github.com/cryguy/fastboot/internal/core"
)

const consoleJS = `
(function() {
	function format(args) {
		var parts = [];
		for (var i = 0; i < args.length; i++) {
			var arg = args[i];
			if (arg instanceof Error) {
				var head = arg.name + ': ' + arg.message;
				var stack = arg.stack ? String(arg.stack) : '';
				parts.push(stack.indexOf(head) === 0 ? stack : stack ? head + '\n' + stack : head);
			} else if (typeof arg === 'object' && arg !== null) {
				try { parts.push(JSON.stringify(arg)); } catch (e) { parts.push(String(arg)); }
			} else {
				parts.push(String(arg));
			}
		}
		return parts.join(' ');
	}
	var con = {};
	['log', 'info', 'warn', 'error', 'debug'].forEach(function(lvl) {
		con[lvl] = function() { __console(lvl, format(arguments)); };
	});
	con.trace = function() { __console('debug', 'Trace: ' + format(arguments)); };
	con.assert = function(cond) {
		if (!cond) __console('error', 'Assertion failed: ' + format(Array.prototype.slice.call(arguments, 1)));
	};
	con.dir = function(obj) { __console('log', format([obj])); };

	var timers = {};
	con.time = function(label) { timers[label || 'default'] = performance.now(); };
	con.timeEnd = function(label) {
		var l = label || 'default';
		if (timers[l] === undefined) return;
		__console('log', l + ': ' + (performance.now() - timers[l]).toFixed(3) + 'ms');
		delete timers[l];
	};
	var counters = {};
	con.count = function(label) {
		var l = label || 'default';
		counters[l] = (counters[l] || 0) + 1;
		__console('log', l + ': ' + counters[l]);
	};
	con.group = function(label) { if (label !== undefined) con.log(label); };
	con.groupEnd = function() {};
	globalThis.console = con;
})();
`

// SetupConsole replaces console with one that records output in the
// current render state and mirrors it to the sandbox logger.
func SetupConsole(rt core.JSRuntime, h *Host) error {
	if err := rt.RegisterFunc("__console", func(level, message string) {
		h.State().AddLog(level, message)
		h.Log.Debug().Str("level", level).Msg(message)
	}); err != nil {
		return err
	}
	return rt.Eval(consoleJS)
}
