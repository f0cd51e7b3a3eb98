package scripts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/fastboot/internal/core"
)

func TestPrepareRejectsLargeScripts(t *testing.T) {
	cfg := core.DefaultEngineConfig()
	cfg.MaxScriptSizeKB = 1
	_, err := Prepare("big.js", strings.Repeat("x", 2048), cfg)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Contains(t, err.Error(), "big.js")
}

func TestPreparePassesThroughWithoutTranspile(t *testing.T) {
	cfg := core.DefaultEngineConfig()
	cfg.Transpile = false
	src := "class A { static #x = 1; }"
	out, err := Prepare("a.js", src, cfg)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestTransformLowersSyntax(t *testing.T) {
	out, err := Transform("app.js", "var a = {}; a.b ??= 1; a.c ||= 2;")
	require.NoError(t, err)
	assert.NotContains(t, out, "??=")
	assert.NotContains(t, out, "||=")
}

func TestTransformReportsSyntaxErrors(t *testing.T) {
	_, err := Transform("broken.js", "function (")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.js")
}
