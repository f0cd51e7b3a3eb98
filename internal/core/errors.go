package core

import "errors"

var (
	// ErrConcurrentRender is returned when a render is attempted while
	// another render on the same manager is still running.
	ErrConcurrentRender = errors.New("fastboot: concurrent render")

	// ErrNameMismatch is returned by the bootstrap config lookup when the
	// requested application name differs from the one set up.
	ErrNameMismatch = errors.New("fastboot: application name mismatch")

	// ErrUnsupportedOperation is returned for dynamic property access on
	// a header collection.
	ErrUnsupportedOperation = errors.New("fastboot: unsupported operation")

	// ErrAlreadyDeferred is returned when deferred rendering is requested
	// a second time within one render.
	ErrAlreadyDeferred = errors.New("fastboot: rendering already deferred")

	// ErrNotRendered is returned by capture when no render has completed
	// successfully since the surface was last reset.
	ErrNotRendered = errors.New("fastboot: nothing rendered")

	// ErrModuleNotFound is returned when a module name cannot be resolved.
	ErrModuleNotFound = errors.New("fastboot: module not found")
)
