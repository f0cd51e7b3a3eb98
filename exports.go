package fastboot

import "github.com/cryguy/fastboot/internal/core"

// Type aliases re-exporting internal/core types so callers can use
// fastboot.Info, fastboot.Snapshot, etc. without importing the internal
// package directly.

type Request = core.RequestInit
type Info = core.Info
type Headers = core.Headers
type Snapshot = core.Snapshot
type LogEntry = core.LogEntry
type EngineConfig = core.EngineConfig
type JSRuntime = core.JSRuntime
type Runtime = core.Runtime
type RuntimeFactory = core.RuntimeFactory

// Errors re-exported from core.
var (
	ErrConcurrentRender     = core.ErrConcurrentRender
	ErrNameMismatch         = core.ErrNameMismatch
	ErrUnsupportedOperation = core.ErrUnsupportedOperation
	ErrAlreadyDeferred      = core.ErrAlreadyDeferred
	ErrNotRendered          = core.ErrNotRendered
	ErrModuleNotFound       = core.ErrModuleNotFound
)

// Functions re-exported from core.
var (
	DefaultEngineConfig = core.DefaultEngineConfig
	NewHeaders          = core.NewHeaders
)
