package fastboot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cryguy/fastboot/internal/bootstrap"
	"github.com/cryguy/fastboot/internal/core"
	"github.com/cryguy/fastboot/internal/metrics"
	"github.com/cryguy/fastboot/internal/render"
	"github.com/cryguy/fastboot/internal/sandbox"
	"github.com/cryguy/fastboot/internal/scripts"
)

// ErrClosed is returned by an Instance after Close.
var ErrClosed = errors.New("fastboot: instance closed")

// ErrTimeout is returned when a boot or render exceeds the configured
// RenderTimeout. The sandbox is discarded and booted again on the next
// render.
var ErrTimeout = errors.New("fastboot: render timed out")

// Result is the outcome of Visit: the captured document together with
// the response the application built.
type Result struct {
	core.Snapshot
	StatusCode int            `json:"statusCode"`
	Headers    *core.Headers  `json:"headers"`
	Metadata   map[string]any `json:"metadata"`
	Logs       []LogEntry     `json:"logs,omitempty"`
}

// Instance is one booted application. It renders one URL at a time;
// a render attempted while another is in progress fails with
// ErrConcurrentRender.
type Instance struct {
	app  *App
	man  *Manifest
	opts options
	log  zerolog.Logger

	run    sync.Mutex // held for the duration of a boot, render or close
	closed atomic.Bool

	mu   sync.Mutex // guards sb for Interrupt from Close
	sb   *sandbox.Sandbox
	mgr  *render.Manager
	logs []core.LogEntry
}

// Boot creates an Instance for app and boots it: the engine is set up,
// vendor and app scripts listed in the manifest are evaluated and the
// application factory is invoked.
func Boot(ctx context.Context, app *App, opts ...Option) (*Instance, error) {
	man, err := ReadManifest(app)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	i := &Instance{
		app:  app,
		man:  man,
		opts: o,
		log:  o.log.With().Str("app", man.AppName).Logger(),
	}
	i.run.Lock()
	defer i.run.Unlock()
	if err := i.ensure(ctx); err != nil {
		return nil, err
	}
	return i, nil
}

// ensure boots a sandbox if none is live. The caller holds run.
func (i *Instance) ensure(ctx context.Context) error {
	if i.sb != nil {
		return nil
	}
	start := time.Now()
	sb, err := i.boot(ctx)
	metrics.RecordBoot(err)
	if err != nil {
		i.log.Error().Err(err).Msg("boot failed")
		return err
	}
	i.mu.Lock()
	i.sb = sb
	i.mgr = render.NewManager(sb, sb,
		render.WithBootOptions(i.opts.boot),
		render.WithLogger(i.log.With().Str("component", "render").Logger()))
	i.mu.Unlock()
	i.log.Info().Dur("elapsed", time.Since(start)).Msg("application booted")
	return nil
}

func (i *Instance) boot(ctx context.Context) (*sandbox.Sandbox, error) {
	config, err := i.man.configJSON()
	if err != nil {
		return nil, fmt.Errorf("fastboot: encoding config: %w", err)
	}
	facade, err := bootstrap.New(i.man.AppName, config, i.opts.facadeOptions()...)
	if err != nil {
		return nil, fmt.Errorf("fastboot: %w", err)
	}
	sb, err := sandbox.New(sandbox.Options{
		Config:  i.opts.config,
		Runtime: i.opts.runtime,
		Facade:  facade,
		Logger:  i.log,
	})
	if err != nil {
		return nil, fmt.Errorf("fastboot: %w", err)
	}

	err = guard(ctx, sb, i.opts.config.RenderTimeout, func(ctx context.Context) error {
		files := append(append([]string(nil), i.man.VendorFiles...), i.man.AppFiles...)
		for _, name := range files {
			src, ok := i.app.File(name)
			if !ok {
				return fmt.Errorf("fastboot: %s lists missing file %s", ManifestFile, name)
			}
			prepared, err := scripts.Prepare(name, string(src), i.opts.config)
			if err != nil {
				return fmt.Errorf("fastboot: %w", err)
			}
			if err := sb.Exec(name, prepared); err != nil {
				return fmt.Errorf("fastboot: %w", err)
			}
		}
		if err := sb.Boot(ctx); err != nil {
			return fmt.Errorf("fastboot: %w", err)
		}
		return nil
	})
	for _, entry := range sb.Host().End() {
		i.log.Debug().Str("level", entry.Level).Msg(entry.Message)
	}
	if err != nil {
		sb.Close()
		return nil, err
	}
	return sb, nil
}

// guard runs fn with a deadline of timeout. When the deadline passes the
// engine is interrupted so that a script stuck in a loop returns, and
// the result is ErrTimeout. Panics are returned as errors.
func guard(ctx context.Context, sb *sandbox.Sandbox, timeout time.Duration, fn func(context.Context) error) (err error) {
	var timedOut atomic.Bool
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
		timer := time.AfterFunc(timeout, func() {
			timedOut.Store(true)
			sb.Interrupt()
		})
		defer timer.Stop()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fastboot: panic: %v", r)
		}
		switch {
		case timedOut.Load() && err == nil:
			err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case timedOut.Load() || (err != nil && timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded)):
			err = fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, err)
		}
	}()
	return fn(ctx)
}

// discard drops the live sandbox. The next render boots a new one.
func (i *Instance) discard() {
	i.mu.Lock()
	sb := i.sb
	i.sb, i.mgr = nil, nil
	i.mu.Unlock()
	if sb != nil {
		sb.Close()
	}
}

// Render visits url with req and returns the render context once the
// application and its deferred work have settled.
func (i *Instance) Render(ctx context.Context, url string, req Request) (*Info, error) {
	if !i.run.TryLock() {
		metrics.RecordRender(metrics.OutcomeRejected, 0)
		return nil, ErrConcurrentRender
	}
	defer i.run.Unlock()
	return i.render(ctx, url, req)
}

// render runs one render. The caller holds run.
func (i *Instance) render(ctx context.Context, url string, req Request) (*Info, error) {
	if i.closed.Load() {
		return nil, ErrClosed
	}
	if err := i.ensure(ctx); err != nil {
		metrics.RecordRender(metrics.OutcomeError, 0)
		return nil, err
	}
	sb, mgr := i.sb, i.mgr

	metrics.RenderInFlight.Inc()
	defer metrics.RenderInFlight.Dec()
	start := time.Now()

	var info *core.Info
	err := guard(ctx, sb, i.opts.config.RenderTimeout, func(ctx context.Context) error {
		var err error
		info, err = mgr.Render(ctx, url, req)
		return err
	})
	i.logs = sb.Host().End()
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, ErrTimeout):
		metrics.RecordRender(metrics.OutcomeTimeout, elapsed)
		i.log.Warn().Str("url", url).Dur("elapsed", elapsed).Msg("render timed out, discarding sandbox")
		i.discard()
		return nil, err
	case err != nil:
		metrics.RecordRender(metrics.OutcomeError, elapsed)
		i.log.Debug().Err(err).Str("url", url).Msg("render failed")
		return nil, err
	}
	metrics.RecordRender(metrics.OutcomeOK, elapsed)
	return info, nil
}

// Capture returns the document state left by the last successful render.
func (i *Instance) Capture() (Snapshot, error) {
	if !i.run.TryLock() {
		return Snapshot{}, ErrConcurrentRender
	}
	defer i.run.Unlock()
	return i.capture()
}

func (i *Instance) capture() (Snapshot, error) {
	if i.mgr == nil {
		return Snapshot{}, ErrNotRendered
	}
	return i.mgr.Capture()
}

// Visit renders url and captures the document in one step.
func (i *Instance) Visit(ctx context.Context, url string, req Request) (*Result, error) {
	if !i.run.TryLock() {
		metrics.RecordRender(metrics.OutcomeRejected, 0)
		return nil, ErrConcurrentRender
	}
	defer i.run.Unlock()

	info, err := i.render(ctx, url, req)
	if err != nil {
		return nil, err
	}
	snap, err := i.capture()
	if err != nil {
		return nil, err
	}
	return &Result{
		Snapshot:   snap,
		StatusCode: info.Response.StatusCode,
		Headers:    info.Response.Headers.Clone(),
		Metadata:   info.Metadata(),
		Logs:       i.logs,
	}, nil
}

// Logs returns the console output of the last render.
func (i *Instance) Logs() []LogEntry {
	if !i.run.TryLock() {
		return nil
	}
	defer i.run.Unlock()
	return append([]LogEntry(nil), i.logs...)
}

// Close interrupts a render in progress, destroys the current
// application instance and releases the engine.
func (i *Instance) Close() {
	if !i.closed.CompareAndSwap(false, true) {
		return
	}
	i.mu.Lock()
	if i.sb != nil && !i.run.TryLock() {
		i.sb.Interrupt()
	} else if i.sb != nil {
		i.run.Unlock()
	}
	i.mu.Unlock()

	i.run.Lock()
	defer i.run.Unlock()
	if i.mgr != nil {
		err := guard(context.Background(), i.sb, i.opts.config.RenderTimeout, i.mgr.Close)
		if err != nil {
			i.log.Debug().Err(err).Msg("destroying instance")
		}
	}
	i.discard()
}

// Render boots app, visits url once and closes the instance. timeout
// bounds the boot and the render separately.
func Render(ctx context.Context, app *App, url string, req Request, timeout time.Duration, opts ...Option) (*Result, error) {
	opts = append(opts, WithRenderTimeout(timeout))
	inst, err := Boot(ctx, app, opts...)
	if err != nil {
		return nil, err
	}
	defer inst.Close()
	return inst.Visit(ctx, url, req)
}
