package webapi

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cryguy/fastboot/internal/bootstrap"
	"github.com/cryguy/fastboot/internal/core"
)

// HeaderTable hands header collections to script by handle. Handles are
// valid until Reset.
type HeaderTable struct {
	mu   sync.Mutex
	next int
	m    map[int]*core.Headers
}

// NewHeaderTable returns an empty table.
func NewHeaderTable() *HeaderTable {
	return &HeaderTable{m: make(map[int]*core.Headers)}
}

// Add registers h and returns its handle.
func (t *HeaderTable) Add(h *core.Headers) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.m[t.next] = h
	return t.next
}

// Get returns the collection behind a handle.
func (t *HeaderTable) Get(id int) (*core.Headers, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.m[id]
	if !ok {
		return nil, fmt.Errorf("headers handle %d is not live", id)
	}
	return h, nil
}

// Reset forgets every handle.
func (t *HeaderTable) Reset() {
	t.mu.Lock()
	t.m = make(map[int]*core.Headers)
	t.mu.Unlock()
}

// fastbootJS defines FastBootHeaders and the FastBoot global. Module
// providers are installed afterwards by SetupFastBoot.
const fastbootJS = `
(function() {
	var passthrough = { then: true, toJSON: true, constructor: true };

	class FastBootHeaders {
		constructor(init) {
			var h = typeof init === 'number' ? init : __fbh_new(JSON.stringify(init || {}));
			Object.defineProperty(this, '__h', { value: h });
			return new Proxy(this, {
				get: function(target, key, receiver) {
					if (typeof key !== 'string' || key in target || passthrough[key]) {
						return Reflect.get(target, key, receiver);
					}
					return target.unknownProperty(key);
				}
			});
		}
		get(name) { return JSON.parse(__fbh_get(this.__h, String(name))); }
		getAll(name) { return JSON.parse(__fbh_get_all(this.__h, String(name))); }
		has(name) { return __fbh_has(this.__h, String(name)) === 1; }
		set(name, value) { __fbh_set(this.__h, String(name), String(value)); }
		append(name, value) { __fbh_append(this.__h, String(name), String(value)); }
		delete(name) { __fbh_delete(this.__h, String(name)); }
		entries() { return JSON.parse(__fbh_entries(this.__h))[Symbol.iterator](); }
		keys() { return JSON.parse(__fbh_entries(this.__h)).map(function(p) { return p[0]; })[Symbol.iterator](); }
		values() { return JSON.parse(__fbh_entries(this.__h)).map(function(p) { return p[1]; })[Symbol.iterator](); }
		forEach(cb, thisArg) {
			var self = this;
			JSON.parse(__fbh_entries(this.__h)).forEach(function(p) { cb.call(thisArg, p[1], p[0], self); });
		}
		unknownProperty(key) { return __fbh_unknown(this.__h, String(key)); }
		toJSON() { return JSON.parse(__fbh_json(this.__h)); }
		[Symbol.iterator]() { return this.entries(); }
	}
	globalThis.FastBootHeaders = FastBootHeaders;

	var modules = {};
	var loaded = {};
	var configs = {};

	function fastbootRequire(name) {
		name = String(name);
		if (Object.prototype.hasOwnProperty.call(loaded, name)) return loaded[name];
		if (Object.prototype.hasOwnProperty.call(modules, name)) {
			loaded[name] = modules[name]();
			return loaded[name];
		}
		__fastboot_resolve(name);
		var hostRequire = globalThis.require;
		if (typeof hostRequire === 'function' && hostRequire !== fastbootRequire) return hostRequire(name);
		var err = new Error("Cannot find module '" + name + "'");
		err.code = 'MODULE_NOT_FOUND';
		throw err;
	}

	globalThis.FastBoot = {
		config: function(name) {
			name = String(name);
			if (!Object.prototype.hasOwnProperty.call(configs, name)) {
				configs[name] = JSON.parse(__fastboot_config(name));
			}
			return configs[name];
		},
		require: fastbootRequire
	};
	globalThis.__fastbootModule = function(name, factory) { modules[name] = factory; };
})();
`

// SetupFastBoot installs FastBootHeaders and the FastBoot global backed
// by facade. Header collections created by script go into table.
func SetupFastBoot(rt core.JSRuntime, facade *bootstrap.Facade, table *HeaderTable) error {
	withHeaders := func(id int, fn func(h *core.Headers) (string, error)) (string, error) {
		h, err := table.Get(id)
		if err != nil {
			return "", err
		}
		return fn(h)
	}
	funcs := map[string]any{
		"__fbh_new": func(initJSON string) (int, error) {
			h := &core.Headers{}
			if err := json.Unmarshal([]byte(initJSON), h); err != nil {
				return 0, err
			}
			return table.Add(h), nil
		},
		"__fbh_get": func(id int, name string) (string, error) {
			return withHeaders(id, func(h *core.Headers) (string, error) {
				v, ok := h.Get(name)
				if !ok {
					return "null", nil
				}
				return jsonString(v)
			})
		},
		"__fbh_get_all": func(id int, name string) (string, error) {
			return withHeaders(id, func(h *core.Headers) (string, error) {
				return jsonString(h.GetAll(name))
			})
		},
		"__fbh_has": func(id int, name string) (int, error) {
			h, err := table.Get(id)
			if err != nil {
				return 0, err
			}
			return core.BoolToInt(h.Has(name)), nil
		},
		"__fbh_set": func(id int, name, value string) (string, error) {
			return withHeaders(id, func(h *core.Headers) (string, error) {
				h.Set(name, value)
				return "", nil
			})
		},
		"__fbh_append": func(id int, name, value string) (string, error) {
			return withHeaders(id, func(h *core.Headers) (string, error) {
				h.Append(name, value)
				return "", nil
			})
		},
		"__fbh_delete": func(id int, name string) (string, error) {
			return withHeaders(id, func(h *core.Headers) (string, error) {
				h.Delete(name)
				return "", nil
			})
		},
		"__fbh_entries": func(id int) (string, error) {
			return withHeaders(id, func(h *core.Headers) (string, error) {
				pairs := [][2]string{}
				for name, value := range h.Entries() {
					pairs = append(pairs, [2]string{name, value})
				}
				return jsonString(pairs)
			})
		},
		"__fbh_json": func(id int) (string, error) {
			return withHeaders(id, func(h *core.Headers) (string, error) {
				return jsonString(h)
			})
		},
		"__fbh_unknown": func(id int, name string) (string, error) {
			return withHeaders(id, func(h *core.Headers) (string, error) {
				return "", h.UnknownProperty(name)
			})
		},
		"__fastboot_config": func(name string) (string, error) {
			cfg, err := facade.Config(name)
			if err != nil {
				return "", err
			}
			return string(cfg), nil
		},
		"__fastboot_resolve": func(name string) (int, error) {
			_, delegate, err := facade.Resolve(name)
			if err != nil {
				return 0, err
			}
			return core.BoolToInt(delegate), nil
		},
	}
	for name, fn := range funcs {
		if err := rt.RegisterFunc(name, fn); err != nil {
			return fmt.Errorf("registering %s: %w", name, err)
		}
	}
	if err := rt.Eval(fastbootJS); err != nil {
		return fmt.Errorf("evaluating fastboot.js: %w", err)
	}
	for _, name := range facade.Modules() {
		p, _, err := facade.Resolve(name)
		if err != nil {
			return err
		}
		if err := rt.Eval(fmt.Sprintf(`__fastbootModule(%s, function() { return (%s); });`, core.JSString(name), p)); err != nil {
			return fmt.Errorf("installing module %s: %w", name, err)
		}
	}
	return nil
}
