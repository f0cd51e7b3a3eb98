package quickjs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/fastboot/internal/core"
)

func newRuntime(t *testing.T) core.Runtime {
	t.Helper()
	rt, err := New(core.DefaultEngineConfig())
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func TestEvalConversions(t *testing.T) {
	rt := newRuntime(t)

	s, err := rt.EvalString(`'a' + 'b'`)
	require.NoError(t, err)
	assert.Equal(t, "ab", s)

	n, err := rt.EvalInt(`6 * 7`)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	b, err := rt.EvalBool(`1 < 2`)
	require.NoError(t, err)
	assert.True(t, b)

	_, err = rt.EvalBool(`'yes'`)
	assert.Error(t, err)

	assert.Error(t, rt.Eval(`throw new Error('boom')`))
}

func TestRegisterFuncUnwrapsErrors(t *testing.T) {
	rt := newRuntime(t)
	require.NoError(t, rt.RegisterFunc("half", func(n int) (int, error) {
		if n%2 != 0 {
			return 0, errors.New("odd")
		}
		return n / 2, nil
	}))

	n, err := rt.EvalInt(`half(10)`)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	msg, err := rt.EvalString(`(function() {
		try { half(3); return 'no error'; } catch (e) { return e instanceof TypeError ? e.message : 'wrong type'; }
	})()`)
	require.NoError(t, err)
	assert.Contains(t, msg, "odd")
}

func TestRunMicrotasks(t *testing.T) {
	rt := newRuntime(t)
	require.NoError(t, rt.Eval(`globalThis.order = []; Promise.resolve().then(function() { order.push('then'); }); order.push('sync');`))

	before, err := rt.EvalString(`order.join(',')`)
	require.NoError(t, err)
	assert.Equal(t, "sync", before)

	rt.RunMicrotasks()
	after, err := rt.EvalString(`order.join(',')`)
	require.NoError(t, err)
	assert.Equal(t, "sync,then", after)
}

func TestSetGlobal(t *testing.T) {
	rt := newRuntime(t)
	require.NoError(t, rt.SetGlobal("answer", 42))
	n, err := rt.EvalInt(`answer`)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestInterruptStopsRunawayScript(t *testing.T) {
	rt := newRuntime(t)
	timer := time.AfterFunc(50*time.Millisecond, rt.Interrupt)
	defer timer.Stop()

	err := rt.Eval(`for (;;) {}`)
	assert.Error(t, err)
}
