package bootstrap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/fastboot/internal/core"
)

func TestConfig(t *testing.T) {
	f, err := New("example", json.RawMessage(`{"example":{"modulePrefix":"example"}}`))
	require.NoError(t, err)
	assert.Equal(t, "example", f.Name())

	cfg, err := f.Config("example")
	require.NoError(t, err)
	assert.JSONEq(t, `{"modulePrefix":"example"}`, string(cfg))

	_, err = f.Config("other")
	assert.ErrorIs(t, err, core.ErrNameMismatch)
}

func TestConfigMissingEntry(t *testing.T) {
	f, err := New("example", nil)
	require.NoError(t, err)
	cfg, err := f.Config("example")
	require.NoError(t, err)
	assert.Equal(t, "null", string(cfg))

	_, err = New("example", json.RawMessage(`[1]`))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	f, err := New("example", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"abortcontroller-polyfill/dist/cjs-ponyfill", "crypto", "node-fetch"}, f.Modules())

	p, delegate, err := f.Resolve("crypto")
	require.NoError(t, err)
	assert.False(t, delegate)
	assert.Equal(t, Provider("globalThis.crypto"), p)

	_, delegate, err = f.Resolve("ember-data")
	require.NoError(t, err)
	assert.True(t, delegate)
}

func TestResolveFail(t *testing.T) {
	f, err := New("example", nil,
		WithFallback(FallbackFail),
		WithModule("lodash", "globalThis.__lodash"))
	require.NoError(t, err)

	p, _, err := f.Resolve("lodash")
	require.NoError(t, err)
	assert.Equal(t, Provider("globalThis.__lodash"), p)

	_, _, err = f.Resolve("unknown")
	assert.ErrorIs(t, err, core.ErrModuleNotFound)
	assert.Equal(t, FallbackFail, f.Fallback())
}
