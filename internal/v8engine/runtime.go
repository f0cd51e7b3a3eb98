//go:build v8

// Package v8engine runs the sandbox on V8 through tommie/v8go. It is
// built with the v8 tag.
package v8engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	v8 "github.com/tommie/v8go"

	"github.com/cryguy/fastboot/internal/core"
)

// Runtime implements core.Runtime over one isolate and context.
type Runtime struct {
	iso       *v8.Isolate
	ctx       *v8.Context
	closeOnce sync.Once
}

var _ core.Runtime = (*Runtime)(nil)

// New creates an isolate whose heap is capped at cfg.MemoryLimitMB.
func New(cfg core.EngineConfig) (core.Runtime, error) {
	var iso *v8.Isolate
	if cfg.MemoryLimitMB > 0 {
		heap := uint64(cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heap/2, heap))
	} else {
		iso = v8.NewIsolate()
	}
	return &Runtime{iso: iso, ctx: v8.NewContext(iso)}, nil
}

// Eval evaluates JavaScript and discards the result.
func (r *Runtime) Eval(js string) error {
	_, err := r.ctx.RunScript(js, "eval.js")
	return err
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *Runtime) EvalString(js string) (string, error) {
	val, err := r.ctx.RunScript(js, "eval_string.js")
	if err != nil || val == nil || val.IsUndefined() {
		return "", err
	}
	return val.String(), nil
}

// EvalBool evaluates JavaScript and returns the result as a Go bool.
func (r *Runtime) EvalBool(js string) (bool, error) {
	val, err := r.ctx.RunScript(js, "eval_bool.js")
	if err != nil || val == nil {
		return false, err
	}
	if !val.IsBoolean() {
		return false, fmt.Errorf("expected bool, got %s", val.String())
	}
	return val.Boolean(), nil
}

// EvalInt evaluates JavaScript and returns the result as a Go int.
func (r *Runtime) EvalInt(js string) (int, error) {
	val, err := r.ctx.RunScript(js, "eval_int.js")
	if err != nil || val == nil {
		return 0, err
	}
	if !val.IsNumber() {
		return 0, fmt.Errorf("expected int, got %s", val.String())
	}
	return int(val.Integer()), nil
}

// RegisterFunc exposes a Go function as a global. Arguments are
// converted by the parameter kinds of fn; a non-nil error from a
// (T, error) function is thrown as an exception.
func (r *Runtime) RegisterFunc(name string, fn any) error {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func {
		return fmt.Errorf("RegisterFunc: expected function, got %T", fn)
	}

	tmpl := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()
		in := make([]reflect.Value, fnType.NumIn())
		for i := range in {
			if i < len(args) {
				in[i] = toGo(args[i], fnType.In(i))
			} else {
				in[i] = reflect.Zero(fnType.In(i))
			}
		}
		out := fnVal.Call(in)
		if len(out) == 2 && !out[1].IsNil() {
			msg, _ := v8.NewValue(r.iso, fmt.Sprintf("%s: %s", name, out[1].Interface().(error).Error()))
			r.iso.ThrowException(msg)
			return nil
		}
		if len(out) == 0 {
			return nil
		}
		return toJS(r.iso, out[0])
	})
	return r.ctx.Global().Set(name, tmpl.GetFunction(r.ctx))
}

// SetGlobal sets a global. Values other than scalars cross as JSON.
func (r *Runtime) SetGlobal(name string, value any) error {
	var (
		v   *v8.Value
		err error
	)
	switch x := value.(type) {
	case nil:
		v = v8.Undefined(r.iso)
	case string, bool, float64, int32:
		v, err = v8.NewValue(r.iso, x)
	case int:
		v, err = v8.NewValue(r.iso, float64(x))
	case int64:
		v, err = v8.NewValue(r.iso, float64(x))
	default:
		data, merr := json.Marshal(value)
		if merr != nil {
			return fmt.Errorf("converting value for %q: %w", name, merr)
		}
		v, err = v8.JSONParse(r.ctx, string(data))
	}
	if err != nil {
		return fmt.Errorf("converting value for %q: %w", name, err)
	}
	return r.ctx.Global().Set(name, v)
}

// RunMicrotasks runs a microtask checkpoint.
func (r *Runtime) RunMicrotasks() {
	r.ctx.PerformMicrotaskCheckpoint()
}

// Interrupt terminates the script currently running. Safe to call from
// any goroutine.
func (r *Runtime) Interrupt() {
	r.iso.TerminateExecution()
}

// Close disposes the context and isolate.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.ctx.Close()
		r.iso.Dispose()
	})
}

func toGo(val *v8.Value, t reflect.Type) reflect.Value {
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(val.String()).Convert(t)
	case reflect.Int:
		return reflect.ValueOf(int(val.Integer())).Convert(t)
	case reflect.Int64:
		return reflect.ValueOf(val.Integer()).Convert(t)
	case reflect.Float64:
		return reflect.ValueOf(val.Number()).Convert(t)
	case reflect.Bool:
		return reflect.ValueOf(val.Boolean()).Convert(t)
	}
	return reflect.Zero(t)
}

func toJS(iso *v8.Isolate, val reflect.Value) *v8.Value {
	var (
		v   *v8.Value
		err error
	)
	switch val.Kind() {
	case reflect.String:
		v, err = v8.NewValue(iso, val.String())
	case reflect.Int, reflect.Int32, reflect.Int64:
		v, err = v8.NewValue(iso, float64(val.Int()))
	case reflect.Float32, reflect.Float64:
		v, err = v8.NewValue(iso, val.Float())
	case reflect.Bool:
		v, err = v8.NewValue(iso, val.Bool())
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return v
}
