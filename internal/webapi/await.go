package webapi

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cryguy/fastboot/internal/core"
	"github.com/cryguy/fastboot/internal/eventloop"
)

// ErrStalled is returned when a promise is still pending but no timer
// or fetch is left that could settle it.
var ErrStalled = errors.New("promise cannot settle: no pending timers or fetches")

// ScriptError is an exception thrown or a rejection raised by script.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string { return e.Message }

var awaitSeq atomic.Uint64

// Await evaluates expr, resolves it as a promise and runs the event loop
// until it settles. It returns the settled value as JSON, or "" when the
// value has no JSON form. A rejection is returned as a *ScriptError.
func Await(ctx context.Context, rt core.JSRuntime, el *eventloop.EventLoop, expr string) (string, error) {
	slot := fmt.Sprintf("__await_%d", awaitSeq.Add(1))
	if err := rt.Eval(fmt.Sprintf(`(function() {
		var s = globalThis[%[1]q] = { done: false, error: null, json: '' };
		var p;
		try { p = Promise.resolve((function() { return %[2]s; })()); } catch (e) { p = Promise.reject(e); }
		p.then(function(v) {
			try { s.json = v === undefined ? '' : JSON.stringify(v) || ''; } catch (e) { s.json = ''; }
			s.done = true;
		}, function(e) {
			s.error = e instanceof Error ? e.name + ': ' + e.message : String(e);
			s.done = true;
		});
	})()`, slot, expr)); err != nil {
		return "", err
	}
	defer func() { _ = rt.Eval(fmt.Sprintf(`delete globalThis[%q]`, slot)) }()

	done := func() (bool, error) {
		rt.RunMicrotasks()
		return rt.EvalBool(fmt.Sprintf(`globalThis[%q].done`, slot))
	}
	for {
		ok, err := done()
		if err != nil {
			return "", err
		}
		if ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		worked, err := el.RunOnce(ctx, rt)
		if err != nil {
			return "", err
		}
		if worked {
			continue
		}
		ok, err = done()
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrStalled
		}
		break
	}

	hasErr, err := rt.EvalBool(fmt.Sprintf(`globalThis[%q].error !== null`, slot))
	if err != nil {
		return "", err
	}
	if hasErr {
		msg, err := rt.EvalString(fmt.Sprintf(`globalThis[%q].error`, slot))
		if err != nil {
			return "", err
		}
		return "", &ScriptError{Message: msg}
	}
	return rt.EvalString(fmt.Sprintf(`globalThis[%q].json`, slot))
}
