// Package quickjs runs the sandbox on modernc.org/quickjs, a pure-Go
// build of the QuickJS engine.
package quickjs

import (
	"fmt"
	"sync"

	"modernc.org/quickjs"

	"github.com/cryguy/fastboot/internal/core"
)

// Runtime implements core.Runtime over one QuickJS VM. It is not safe
// for concurrent use except for Interrupt.
type Runtime struct {
	vm        *quickjs.VM
	jobs      jobQueue
	closeOnce sync.Once
}

var _ core.Runtime = (*Runtime)(nil)

// New creates a VM limited to cfg.MemoryLimitMB.
func New(cfg core.EngineConfig) (core.Runtime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(cfg.MemoryLimitMB) * 1024 * 1024)
	}
	jobs, err := newJobQueue(vm)
	if err != nil {
		vm.Close()
		return nil, err
	}
	return &Runtime{vm: vm, jobs: jobs}, nil
}

// Eval evaluates JavaScript and discards the result.
func (r *Runtime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *Runtime) EvalString(js string) (string, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

// EvalBool evaluates JavaScript and returns the result as a Go bool.
func (r *Runtime) EvalBool(js string) (bool, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", result)
	}
	return b, nil
}

// EvalInt evaluates JavaScript and returns the result as a Go int.
func (r *Runtime) EvalInt(js string) (int, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return 0, err
	}
	switch v := result.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected int, got %T", result)
	}
}

// RegisterFunc registers a Go function as a global JavaScript function.
// The QuickJS wrapper hands multi-value returns back as arrays; a
// (T, error) function is unwrapped to T, or throws a TypeError when the
// error is set.
func (r *Runtime) RegisterFunc(name string, fn any) error {
	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, fn, false); err != nil {
		return err
	}
	return r.Eval(fmt.Sprintf(`(function() {
		var raw = globalThis[%[1]q];
		globalThis[%[2]q] = function() {
			var r = raw.apply(this, arguments);
			if (Array.isArray(r) && r.length === 2) {
				if (r[1] !== null && r[1] !== undefined) throw new TypeError(%[2]q + ": " + r[1]);
				return r[0];
			}
			return r;
		};
		delete globalThis[%[1]q];
	})()`, rawName, name))
}

// SetGlobal sets a property on the global object.
func (r *Runtime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

// RunMicrotasks runs every pending promise job.
func (r *Runtime) RunMicrotasks() {
	r.jobs.drain()
}

// Interrupt aborts the script currently running. Safe to call from any
// goroutine.
func (r *Runtime) Interrupt() {
	r.vm.Interrupt()
}

// Close releases the VM. Further calls are no-ops.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() { r.vm.Close() })
}
