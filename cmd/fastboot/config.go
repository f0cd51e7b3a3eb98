package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/cryguy/fastboot"
)

// Config is the serve configuration. It is read from a YAML file and
// overlaid by flags set on the command line.
type Config struct {
	Name     string `yaml:"name"`
	Dir      string `yaml:"dir"`
	Addr     string `yaml:"addr"`
	Origin   string `yaml:"origin"`
	FastBoot bool   `yaml:"fastboot"`
	Isolated bool   `yaml:"isolated"`

	Cache   time.Duration `yaml:"cache"`
	CacheDB string        `yaml:"cache_db"`

	RateLimit int `yaml:"rate_limit"` // requests per minute per client IP; 0 disables

	Engine EngineConfig `yaml:"engine"`
}

// EngineConfig mirrors fastboot.EngineConfig for the YAML file.
type EngineConfig struct {
	MemoryLimitMB    int           `yaml:"memory_limit_mb"`
	RenderTimeout    time.Duration `yaml:"render_timeout"`
	MaxFetchRequests int           `yaml:"max_fetch_requests"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	MaxResponseBytes int           `yaml:"max_response_bytes"`
	MaxScriptSizeKB  int           `yaml:"max_script_size_kb"`
	Transpile        bool          `yaml:"transpile"`
	AllowPrivateNet  bool          `yaml:"allow_private_net"`
}

func defaultConfig() Config {
	d := fastboot.DefaultEngineConfig()
	return Config{
		Dir:      "dist",
		Addr:     ":4200",
		FastBoot: true,
		Engine: EngineConfig{
			MemoryLimitMB:    d.MemoryLimitMB,
			RenderTimeout:    d.RenderTimeout,
			MaxFetchRequests: d.MaxFetchRequests,
			FetchTimeout:     d.FetchTimeout,
			MaxResponseBytes: d.MaxResponseBytes,
			MaxScriptSizeKB:  d.MaxScriptSizeKB,
		},
	}
}

// engine converts the file form to the library configuration.
func (c Config) engine() fastboot.EngineConfig {
	return fastboot.EngineConfig{
		MemoryLimitMB:    c.Engine.MemoryLimitMB,
		RenderTimeout:    c.Engine.RenderTimeout,
		MaxFetchRequests: c.Engine.MaxFetchRequests,
		FetchTimeout:     c.Engine.FetchTimeout,
		MaxResponseBytes: c.Engine.MaxResponseBytes,
		MaxScriptSizeKB:  c.Engine.MaxScriptSizeKB,
		Transpile:        c.Engine.Transpile,
		Origin:           c.Origin,
		AllowPrivateNet:  c.Engine.AllowPrivateNet,
	}
}

func (c Config) validate() error {
	if c.Name == "" {
		return errors.New("config: name is required")
	}
	if c.Dir == "" {
		return errors.New("config: dir is required")
	}
	if c.Cache < 0 {
		return fmt.Errorf("config: cache must not be negative, got %s", c.Cache)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate_limit must not be negative, got %d", c.RateLimit)
	}
	return nil
}

// decodeConfig reads YAML from r on top of cfg, rejecting unknown keys.
func decodeConfig(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// loadConfig returns the defaults overlaid by the file at path, if any.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := decodeConfig(bytes.NewReader(data), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// serveFlags holds flag values before they are overlaid on a Config.
type serveFlags struct {
	config    string
	name      string
	dir       string
	addr      string
	origin    string
	fastboot  bool
	isolated  bool
	cache     time.Duration
	cacheDB   string
	rateLimit int
	timeout   time.Duration
	transpile bool
	private   bool
}

func (f *serveFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.config, "config", "c", "", "YAML configuration file")
	fs.StringVar(&f.name, "name", "", "application name, as used in the config meta tag")
	fs.StringVar(&f.dir, "dir", "dist", "directory containing the built application")
	fs.StringVar(&f.addr, "addr", ":4200", "listen address")
	fs.StringVar(&f.origin, "origin", "", "origin the application sees, e.g. https://example.org")
	fs.BoolVar(&f.fastboot, "fastboot", true, "pre-render pages; when false files are served as is")
	fs.BoolVar(&f.isolated, "isolated", false, "boot a fresh instance for every request")
	fs.DurationVar(&f.cache, "cache", 0, "how long rendered pages are cached; 0 disables")
	fs.StringVar(&f.cacheDB, "cache-db", "", "SQLite file for the page cache; in memory when empty")
	fs.IntVar(&f.rateLimit, "rate-limit", 0, "requests per minute per client IP; 0 disables")
	fs.DurationVar(&f.timeout, "render-timeout", 0, "limit for one boot or render")
	fs.BoolVar(&f.transpile, "transpile", false, "lower app script syntax before evaluation")
	fs.BoolVar(&f.private, "allow-private-net", false, "allow fetches to private addresses")
}

// apply overlays flags the user set explicitly.
func (f *serveFlags) apply(fs *pflag.FlagSet, cfg *Config) {
	set := func(name string) bool { return fs.Changed(name) }
	if set("name") {
		cfg.Name = f.name
	}
	if set("dir") {
		cfg.Dir = f.dir
	}
	if set("addr") {
		cfg.Addr = f.addr
	}
	if set("origin") {
		cfg.Origin = f.origin
	}
	if set("fastboot") {
		cfg.FastBoot = f.fastboot
	}
	if set("isolated") {
		cfg.Isolated = f.isolated
	}
	if set("cache") {
		cfg.Cache = f.cache
	}
	if set("cache-db") {
		cfg.CacheDB = f.cacheDB
	}
	if set("rate-limit") {
		cfg.RateLimit = f.rateLimit
	}
	if set("render-timeout") {
		cfg.Engine.RenderTimeout = f.timeout
	}
	if set("transpile") {
		cfg.Engine.Transpile = f.transpile
	}
	if set("allow-private-net") {
		cfg.Engine.AllowPrivateNet = f.private
	}
}
