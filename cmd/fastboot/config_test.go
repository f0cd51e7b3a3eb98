package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fastboot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: my-app
dir: ./dist
addr: ":8080"
cache: 5m
cache_db: /var/lib/fastboot/pages.db
rate_limit: 120
engine:
  render_timeout: 2s
  transpile: true
`), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "my-app", cfg.Name)
	assert.Equal(t, "./dist", cfg.Dir)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.True(t, cfg.FastBoot)
	assert.Equal(t, 5*time.Minute, cfg.Cache)
	assert.Equal(t, "/var/lib/fastboot/pages.db", cfg.CacheDB)
	assert.Equal(t, 120, cfg.RateLimit)
	assert.Equal(t, 2*time.Second, cfg.Engine.RenderTimeout)
	assert.True(t, cfg.Engine.Transpile)
	assert.Equal(t, 50, cfg.Engine.MaxFetchRequests)

	engine := cfg.engine()
	assert.Equal(t, 2*time.Second, engine.RenderTimeout)
	assert.True(t, engine.Transpile)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	cfg := defaultConfig()
	err := decodeConfig(strings.NewReader("name: my-app\nworkers: 4\n"), &cfg)
	assert.ErrorContains(t, err, "workers")

	cfg = defaultConfig()
	require.NoError(t, decodeConfig(strings.NewReader(""), &cfg))
	assert.Equal(t, defaultConfig(), cfg)
}

func TestFlagsOverlayConfig(t *testing.T) {
	var flags serveFlags
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.register(fs)
	require.NoError(t, fs.Parse([]string{"--name", "other-app", "--isolated", "--render-timeout", "3s"}))

	cfg := defaultConfig()
	cfg.Name = "my-app"
	cfg.Addr = ":9000"
	flags.apply(fs, &cfg)

	assert.Equal(t, "other-app", cfg.Name)
	assert.Equal(t, ":9000", cfg.Addr, "unset flags keep the file value")
	assert.True(t, cfg.Isolated)
	assert.Equal(t, 3*time.Second, cfg.Engine.RenderTimeout)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	assert.ErrorContains(t, cfg.validate(), "name is required")

	cfg.Name = "my-app"
	assert.NoError(t, cfg.validate())

	cfg.Cache = -time.Second
	assert.ErrorContains(t, cfg.validate(), "cache")
}
