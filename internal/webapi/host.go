// Package webapi installs the browser-like platform a bundled application
// expects into a JS runtime: timers, console, events, encoding, crypto,
// fetch, the DOM bridge and the FastBoot global.
package webapi

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cryguy/fastboot/internal/core"
	"github.com/cryguy/fastboot/internal/dom"
	"github.com/cryguy/fastboot/internal/eventloop"
)

// Host is what the Go callbacks of one sandbox share: its configuration,
// event loop, document and the state of the render in progress.
type Host struct {
	Config core.EngineConfig
	Loop   *eventloop.EventLoop
	Doc    *dom.Document
	Log    zerolog.Logger

	// Client performs outbound fetches. NewHost installs one whose dialer
	// refuses private addresses unless Config.AllowPrivateNet is set.
	Client *http.Client

	mu    sync.Mutex
	state *core.RenderState
}

// NewHost returns a host with an idle render state, used for output
// produced while the sandbox boots.
func NewHost(cfg core.EngineConfig, loop *eventloop.EventLoop, doc *dom.Document, log zerolog.Logger) *Host {
	h := &Host{
		Config: cfg,
		Loop:   loop,
		Doc:    doc,
		Log:    log,
		state:  core.NewRenderState(cfg.MaxFetchRequests),
	}
	h.Client = newFetchClient(cfg)
	return h
}

// End clears the current render state, cancelling fetches still in
// flight, and returns the console output it captured.
func (h *Host) End() []core.LogEntry {
	h.mu.Lock()
	rs := h.state
	h.state = core.NewRenderState(h.Config.MaxFetchRequests)
	h.mu.Unlock()
	rs.Clear()
	return rs.Logs()
}

// State returns the current render state. It is never nil.
func (h *Host) State() *core.RenderState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// SetupFunc installs one part of the platform.
type SetupFunc func(rt core.JSRuntime, h *Host) error

// Platform lists the setup steps in dependency order.
var Platform = []struct {
	Name  string
	Setup SetupFunc
}{
	{"globals", SetupGlobals},
	{"console", SetupConsole},
	{"timers", SetupTimers},
	{"events", SetupEvents},
	{"encoding", SetupEncoding},
	{"url", SetupURL},
	{"crypto", SetupCrypto},
	{"fetch", SetupFetch},
	{"document", SetupDocument},
}

// Setup installs the whole platform.
func Setup(rt core.JSRuntime, h *Host) error {
	for _, step := range Platform {
		if err := step.Setup(rt, h); err != nil {
			return fmt.Errorf("setting up %s: %w", step.Name, err)
		}
	}
	return nil
}
