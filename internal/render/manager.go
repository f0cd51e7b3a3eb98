// Package render drives application instances through a render: it
// owns the running flag and the current instance, resets the document
// surface between renders and hands back the render context.
package render

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cryguy/fastboot/internal/core"
	fblog "github.com/cryguy/fastboot/internal/log"
)

// ServiceKey is the registry key the render context is registered under.
const ServiceKey = "info:-fastboot"

// RegisterOptions controls how a value is registered with an instance.
type RegisterOptions struct {
	Instantiate bool
}

// BootOptions are passed to both Boot and Visit.
type BootOptions struct {
	IsBrowser     bool
	IsInteractive bool
	// RootElement names the element the application renders into.
	RootElement string
}

// DefaultBootOptions renders into body as a non-interactive browser.
func DefaultBootOptions() BootOptions {
	return BootOptions{IsBrowser: true, IsInteractive: false, RootElement: "body"}
}

// Registrar registers values with an instance's container.
type Registrar interface {
	Register(key string, value any, opts RegisterOptions) error
}

// Instance is one application instance built for one render.
type Instance interface {
	Registrar
	Boot(ctx context.Context, opts BootOptions) error
	Visit(ctx context.Context, url string, opts BootOptions) error
	Destroy(ctx context.Context) error
}

// Application builds instances.
type Application interface {
	BuildInstance(ctx context.Context) (Instance, error)
}

// Surface is the shared document the application renders into.
type Surface interface {
	Reset()
	Capture() core.Snapshot
}

// Manager serializes renders against one application and surface. At
// most one render runs at a time; a render attempted while another is
// running fails immediately with core.ErrConcurrentRender.
type Manager struct {
	app     Application
	surface Surface
	opts    BootOptions
	log     zerolog.Logger

	running  atomic.Bool
	mu       sync.Mutex
	current  Instance
	rendered bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithBootOptions overrides the options passed to Boot and Visit.
func WithBootOptions(opts BootOptions) Option {
	return func(m *Manager) { m.opts = opts }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager returns an idle manager.
func NewManager(app Application, surface Surface, opts ...Option) *Manager {
	m := &Manager{
		app:     app,
		surface: surface,
		opts:    DefaultBootOptions(),
		log:     fblog.WithComponent("render"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// detach keeps the values and deadline of ctx but drops its
// cancellation.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	d := context.WithoutCancel(ctx)
	if dl, ok := ctx.Deadline(); ok {
		return context.WithDeadline(d, dl)
	}
	return d, func() {}
}

// Running reports whether a render is in progress.
func (m *Manager) Running() bool {
	return m.running.Load()
}

// Render destroys the previous instance, resets the surface, builds and
// boots a new instance, visits url and waits for deferred work. The
// returned Info reflects every mutation the application made to it.
// Errors from the application are returned unchanged.
//
// Cancelling ctx does not stop a render once started; a deadline on ctx
// still bounds it.
func (m *Manager) Render(ctx context.Context, url string, init core.RequestInit) (*core.Info, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, core.ErrConcurrentRender
	}
	defer m.running.Store(false)

	ctx, cancel := detach(ctx)
	defer cancel()

	start := time.Now()
	m.mu.Lock()
	m.rendered = false
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev != nil {
		if err := prev.Destroy(ctx); err != nil {
			return nil, err
		}
	}

	m.surface.Reset()

	inst, err := m.app.BuildInstance(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.current = inst
	m.mu.Unlock()

	info := core.NewInfo(core.NewRequest(init))
	if err := inst.Register(ServiceKey, info, RegisterOptions{Instantiate: false}); err != nil {
		return nil, err
	}
	if err := inst.Boot(ctx, m.opts); err != nil {
		return nil, err
	}
	if err := inst.Visit(ctx, url, m.opts); err != nil {
		return nil, err
	}
	if err := info.Wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.rendered = true
	m.mu.Unlock()
	m.log.Debug().Str("url", url).Dur("elapsed", time.Since(start)).Int("status", info.Response.StatusCode).Msg("render complete")
	return info, nil
}

// Capture snapshots the surface after a successful render.
func (m *Manager) Capture() (core.Snapshot, error) {
	if m.running.Load() {
		return core.Snapshot{}, core.ErrConcurrentRender
	}
	m.mu.Lock()
	ok := m.rendered
	m.mu.Unlock()
	if !ok {
		return core.Snapshot{}, core.ErrNotRendered
	}
	return m.surface.Capture(), nil
}

// Close destroys the current instance, if any.
func (m *Manager) Close(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return core.ErrConcurrentRender
	}
	defer m.running.Store(false)
	m.mu.Lock()
	inst := m.current
	m.current = nil
	m.rendered = false
	m.mu.Unlock()
	if inst == nil {
		return nil
	}
	return inst.Destroy(ctx)
}
