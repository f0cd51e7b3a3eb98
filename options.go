package fastboot

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cryguy/fastboot/internal/bootstrap"
	"github.com/cryguy/fastboot/internal/core"
	fblog "github.com/cryguy/fastboot/internal/log"
	"github.com/cryguy/fastboot/internal/render"
)

type options struct {
	config  core.EngineConfig
	runtime core.RuntimeFactory
	modules map[string]string
	strict  bool
	boot    render.BootOptions
	log     zerolog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		config:  core.DefaultEngineConfig(),
		runtime: newRuntime,
		modules: map[string]string{},
		boot:    render.DefaultBootOptions(),
		log:     fblog.WithComponent("sandbox"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.config = o.config.WithDefaults()
	return o
}

func (o options) facadeOptions() []bootstrap.Option {
	out := make([]bootstrap.Option, 0, len(o.modules)+1)
	for name, expr := range o.modules {
		out = append(out, bootstrap.WithModule(name, bootstrap.Provider(expr)))
	}
	if o.strict {
		out = append(out, bootstrap.WithFallback(bootstrap.FallbackFail))
	}
	return out
}

// Option configures an Instance.
type Option func(*options)

// WithConfig replaces the engine configuration. Zero fields take their
// defaults.
func WithConfig(cfg EngineConfig) Option {
	return func(o *options) { o.config = cfg }
}

// WithRenderTimeout limits the wall time of one boot or render. A
// negative value disables the limit.
func WithRenderTimeout(d time.Duration) Option {
	return func(o *options) { o.config.RenderTimeout = d }
}

// WithOrigin sets the scheme and host the application sees in location
// and resolves relative fetches against.
func WithOrigin(origin string) Option {
	return func(o *options) { o.config.Origin = origin }
}

// WithRuntime replaces the JS engine.
func WithRuntime(f RuntimeFactory) Option {
	return func(o *options) { o.runtime = f }
}

// WithModule makes FastBoot.require(name) return the value of the JS
// expression expr.
func WithModule(name, expr string) Option {
	return func(o *options) { o.modules[name] = expr }
}

// WithStrictRequire makes FastBoot.require fail for names it does not
// provide instead of delegating to the application's loader.
func WithStrictRequire() Option {
	return func(o *options) { o.strict = true }
}

// WithRootElement sets the selector of the element the application
// renders into.
func WithRootElement(selector string) Option {
	return func(o *options) { o.boot.RootElement = selector }
}

// WithLogger sets the logger for boot and render events.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}
