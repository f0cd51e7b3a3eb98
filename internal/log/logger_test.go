package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test"})

	l := WithComponent("render")
	l.Info().Str("url", "/").Msg("rendered")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "render", entry["component"])
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "/", entry["url"])
	assert.Equal(t, "rendered", entry["message"])
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "warn", Output: &buf})

	l := Derive(func(c *zerolog.Context) { *c = c.Str("request_id", "abc") })
	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("shown")
	assert.Contains(t, buf.String(), `"request_id":"abc"`)
}
