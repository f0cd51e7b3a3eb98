// Package bootstrap holds the configuration facade and module table an
// application sees through the FastBoot global inside the sandbox.
package bootstrap

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/cryguy/fastboot/internal/core"
)

// Provider is a JavaScript expression, evaluated inside the sandbox,
// that produces the value of a module.
type Provider string

// Fallback decides what happens to module names missing from the table.
type Fallback int

const (
	// FallbackDelegate hands unknown names to the sandbox's own require.
	FallbackDelegate Fallback = iota
	// FallbackFail rejects unknown names.
	FallbackFail
)

// DefaultModules are the capabilities provided to every application.
func DefaultModules() map[string]Provider {
	return map[string]Provider{
		"crypto": `globalThis.crypto`,
		"node-fetch": `({
			default: globalThis.fetch,
			FormData: globalThis.FormData,
			Headers: globalThis.Headers,
			Request: globalThis.Request,
			Response: globalThis.Response,
			FetchError: globalThis.FetchError,
			AbortError: globalThis.AbortError,
			isRedirect: function(code) { return [301, 302, 303, 307, 308].indexOf(code) >= 0; },
			Blob: globalThis.Blob,
			File: globalThis.File,
			fileFromSync: globalThis.fileFromSync,
			fileFrom: globalThis.fileFrom,
			blobFromSync: globalThis.blobFromSync,
			blobFrom: globalThis.blobFrom
		})`,
		"abortcontroller-polyfill/dist/cjs-ponyfill": `({
			AbortController: globalThis.AbortController,
			AbortSignal: globalThis.AbortSignal,
			fetch: globalThis.fetch
		})`,
	}
}

// Facade is the application's view of its configuration and of the
// modules the host provides.
type Facade struct {
	name     string
	config   map[string]json.RawMessage
	modules  map[string]Provider
	fallback Fallback
}

// Option configures a Facade.
type Option func(*Facade)

// WithModule adds or replaces a module provider.
func WithModule(name string, p Provider) Option {
	return func(f *Facade) { f.modules[name] = p }
}

// WithFallback sets the strategy for names missing from the table.
func WithFallback(fb Fallback) Option {
	return func(f *Facade) { f.fallback = fb }
}

// New creates a facade for the application name with config, a JSON
// object mapping application names to their configuration.
func New(name string, config json.RawMessage, opts ...Option) (*Facade, error) {
	f := &Facade{
		name:    name,
		config:  map[string]json.RawMessage{},
		modules: DefaultModules(),
	}
	if len(config) > 0 && string(config) != "null" {
		if err := json.Unmarshal(config, &f.config); err != nil {
			return nil, fmt.Errorf("bootstrap: config must be an object keyed by application name: %w", err)
		}
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Name returns the application name the facade was set up with.
func (f *Facade) Name() string {
	return f.name
}

// Config returns the configuration of the named application. Asking for
// any name other than the one set up fails with core.ErrNameMismatch.
func (f *Facade) Config(name string) (json.RawMessage, error) {
	if name != f.name {
		return nil, fmt.Errorf("%w: configured for %q, asked for %q", core.ErrNameMismatch, f.name, name)
	}
	cfg, ok := f.config[name]
	if !ok {
		return json.RawMessage("null"), nil
	}
	return cfg, nil
}

// Resolve looks a module up in the table. When it is missing, the
// second result tells the caller to delegate to the sandbox's own
// require; with FallbackFail the lookup fails with core.ErrModuleNotFound.
func (f *Facade) Resolve(name string) (Provider, bool, error) {
	if p, ok := f.modules[name]; ok {
		return p, false, nil
	}
	if f.fallback == FallbackDelegate {
		return "", true, nil
	}
	return "", false, fmt.Errorf("%w: %s", core.ErrModuleNotFound, name)
}

// Modules returns the module names in the table, sorted.
func (f *Facade) Modules() []string {
	return slices.Sorted(maps.Keys(f.modules))
}

// Fallback returns the strategy for names missing from the table.
func (f *Facade) Fallback() Fallback {
	return f.fallback
}
