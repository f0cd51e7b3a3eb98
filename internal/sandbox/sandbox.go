// Package sandbox hosts one booted application inside a JS runtime and
// exposes it to the render manager as an Application and a Surface.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cryguy/fastboot/internal/bootstrap"
	"github.com/cryguy/fastboot/internal/core"
	"github.com/cryguy/fastboot/internal/dom"
	"github.com/cryguy/fastboot/internal/eventloop"
	"github.com/cryguy/fastboot/internal/render"
	"github.com/cryguy/fastboot/internal/webapi"
)

// Options configure a sandbox.
type Options struct {
	Config  core.EngineConfig
	Runtime core.RuntimeFactory
	Facade  *bootstrap.Facade
	Logger  zerolog.Logger
}

// Sandbox is one JS runtime with the platform, the FastBoot global and
// the render driver installed. It is not safe for concurrent use except
// for Interrupt.
type Sandbox struct {
	rt     core.Runtime
	host   *webapi.Host
	table  *webapi.HeaderTable
	facade *bootstrap.Facade
	log    zerolog.Logger

	info *core.Info
}

var (
	_ render.Application = (*Sandbox)(nil)
	_ render.Surface     = (*Sandbox)(nil)
)

// New creates a runtime and installs everything an application needs
// before its scripts are evaluated.
func New(opts Options) (*Sandbox, error) {
	if opts.Runtime == nil {
		return nil, errors.New("sandbox: no runtime factory")
	}
	if opts.Facade == nil {
		return nil, errors.New("sandbox: no bootstrap facade")
	}
	cfg := opts.Config.WithDefaults()
	rt, err := opts.Runtime(cfg)
	if err != nil {
		return nil, fmt.Errorf("sandbox: creating runtime: %w", err)
	}
	s := &Sandbox{
		rt:     rt,
		host:   webapi.NewHost(cfg, eventloop.New(), dom.New(), opts.Logger),
		table:  webapi.NewHeaderTable(),
		facade: opts.Facade,
		log:    opts.Logger,
	}
	if err := s.install(); err != nil {
		rt.Close()
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	return s, nil
}

func (s *Sandbox) install() error {
	if err := webapi.Setup(s.rt, s.host); err != nil {
		return err
	}
	if err := webapi.SetupFastBoot(s.rt, s.facade, s.table); err != nil {
		return fmt.Errorf("setting up fastboot: %w", err)
	}
	funcs := map[string]any{
		"__fb_status": func() (int, error) {
			info, err := s.current()
			if err != nil {
				return 0, err
			}
			return info.Response.StatusCode, nil
		},
		"__fb_set_status": func(code int) (int, error) {
			info, err := s.current()
			if err != nil {
				return 0, err
			}
			info.Response.StatusCode = code
			return code, nil
		},
		"__fb_defer": func() (int, error) {
			info, err := s.current()
			if err != nil {
				return 0, err
			}
			return 1, info.DeferRendering(func(ctx context.Context) error {
				if _, err := s.await(ctx, `__fb.wait()`); err != nil {
					return err
				}
				return s.collect()
			})
		},
	}
	for name, fn := range funcs {
		if err := s.rt.RegisterFunc(name, fn); err != nil {
			return fmt.Errorf("registering %s: %w", name, err)
		}
	}
	if err := s.rt.Eval(driverJS); err != nil {
		return fmt.Errorf("evaluating driver: %w", err)
	}
	return nil
}

func (s *Sandbox) current() (*core.Info, error) {
	if s.info == nil {
		return nil, errors.New("no render context is registered")
	}
	return s.info, nil
}

// collect copies the script-side metadata object into the current
// render context.
func (s *Sandbox) collect() error {
	info, err := s.current()
	if err != nil {
		return err
	}
	out, err := s.rt.EvalString(`__fb.collect()`)
	if err != nil {
		return fmt.Errorf("collecting metadata: %w", err)
	}
	var md map[string]any
	if err := json.Unmarshal([]byte(out), &md); err != nil {
		return fmt.Errorf("decoding metadata: %w", err)
	}
	info.SetMetadata(md)
	return nil
}

func (s *Sandbox) await(ctx context.Context, expr string) (string, error) {
	return webapi.Await(ctx, s.rt, s.host.Loop, expr)
}

// Host returns the platform host shared by the sandbox's callbacks.
func (s *Sandbox) Host() *webapi.Host {
	return s.host
}

// Exec evaluates a script in the global scope. name is used in errors.
func (s *Sandbox) Exec(name, src string) error {
	if err := s.rt.Eval(src); err != nil {
		return fmt.Errorf("evaluating %s: %w", name, err)
	}
	s.rt.RunMicrotasks()
	return nil
}

// Boot creates the application through the loader's app factory module
// and waits for its boot promise.
func (s *Sandbox) Boot(ctx context.Context) error {
	if _, err := s.await(ctx, `__fb.boot()`); err != nil {
		return fmt.Errorf("booting application: %w", err)
	}
	return nil
}

// BuildInstance asks the application for a new instance.
func (s *Sandbox) BuildInstance(ctx context.Context) (render.Instance, error) {
	out, err := s.await(ctx, `__fb.build()`)
	if err != nil {
		return nil, err
	}
	id, err := strconv.Atoi(out)
	if err != nil {
		return nil, fmt.Errorf("unexpected instance id %q", out)
	}
	return &instance{sb: s, id: id}, nil
}

// Reset empties the document and forgets timers, fetches and header
// handles left behind by the previous render. Console output captured
// since the last Host().End is dropped.
func (s *Sandbox) Reset() {
	s.host.End()
	s.host.Loop.Reset()
	s.table.Reset()
	s.info = nil
	if err := s.rt.Eval(`__timerReset(); __fetchReset();`); err != nil {
		s.log.Warn().Err(err).Msg("resetting timers")
	}
	if err := webapi.ResetDocument(s.rt, s.host); err != nil {
		s.log.Warn().Err(err).Msg("resetting document")
	}
}

// Capture snapshots the document.
func (s *Sandbox) Capture() core.Snapshot {
	return s.host.Doc.Capture()
}

// Interrupt aborts the script currently running. Safe to call from any
// goroutine.
func (s *Sandbox) Interrupt() {
	s.rt.Interrupt()
}

// Close ends the current render state and releases the runtime.
func (s *Sandbox) Close() {
	s.host.End()
	s.rt.Close()
}

type bootOptions struct {
	IsBrowser     bool   `json:"isBrowser"`
	IsInteractive bool   `json:"isInteractive"`
	RootElement   string `json:"rootElement"`
}

// requestFields is the part of a request passed to script as plain data;
// headers travel as a FastBootHeaders handle.
type requestFields struct {
	Method      string            `json:"method"`
	Protocol    string            `json:"protocol"`
	Path        string            `json:"path"`
	Cookies     map[string]string `json:"cookies"`
	QueryParams map[string]string `json:"queryParams"`
	Body        string            `json:"body"`
}

type instance struct {
	sb *Sandbox
	id int
}

func (i *instance) Register(key string, value any, opts render.RegisterOptions) error {
	var expr string
	if info, ok := value.(*core.Info); ok {
		req, err := json.Marshal(requestFields{
			Method:      info.Request.Method,
			Protocol:    info.Request.Protocol,
			Path:        info.Request.Path,
			Cookies:     info.Request.Cookies,
			QueryParams: info.Request.QueryParams,
			Body:        info.Request.Body,
		})
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		i.sb.info = info
		expr = fmt.Sprintf(`__fb.info(%s, %d, %d)`, req,
			i.sb.table.Add(info.Request.Headers), i.sb.table.Add(info.Response.Headers))
	} else {
		b, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		expr = string(b)
	}
	return i.sb.rt.Eval(fmt.Sprintf(`__fb.register(%d, %s, %s, %t)`, i.id, core.JSString(key), expr, opts.Instantiate))
}

func encodeOptions(opts render.BootOptions) string {
	b, _ := json.Marshal(bootOptions{
		IsBrowser:     opts.IsBrowser,
		IsInteractive: opts.IsInteractive,
		RootElement:   opts.RootElement,
	})
	return string(b)
}

func (i *instance) Boot(ctx context.Context, opts render.BootOptions) error {
	_, err := i.sb.await(ctx, fmt.Sprintf(`__fb.boot_instance(%d, %s)`, i.id, encodeOptions(opts)))
	return err
}

func (i *instance) Visit(ctx context.Context, url string, opts render.BootOptions) error {
	if _, err := i.sb.await(ctx, fmt.Sprintf(`__fb.visit(%d, %s, %s)`, i.id, core.JSString(url), encodeOptions(opts))); err != nil {
		return err
	}
	return i.sb.collect()
}

func (i *instance) Destroy(ctx context.Context) error {
	_, err := i.sb.await(ctx, fmt.Sprintf(`__fb.destroy(%d)`, i.id))
	return err
}
