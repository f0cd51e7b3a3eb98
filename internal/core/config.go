package core

import "time"

// EngineConfig holds runtime configuration for a render sandbox.
type EngineConfig struct {
	MemoryLimitMB    int           // per-runtime memory limit
	RenderTimeout    time.Duration // host-level limit for one render; negative disables
	MaxFetchRequests int           // max outbound fetches per render
	FetchTimeout     time.Duration // per-fetch timeout
	MaxResponseBytes int           // max fetched response body size
	MaxScriptSizeKB  int           // max size of a single app or vendor script
	Transpile        bool          // lower app scripts to the engine's syntax level
	Origin           string        // scheme://host used for location and relative fetches
	AllowPrivateNet  bool          // permit fetches to loopback and private addresses
}

// DefaultEngineConfig returns the configuration used when a caller
// leaves fields zero.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MemoryLimitMB:    256,
		RenderTimeout:    30 * time.Second,
		MaxFetchRequests: 50,
		FetchTimeout:     10 * time.Second,
		MaxResponseBytes: 10 << 20,
		MaxScriptSizeKB:  16 << 10,
		Origin:           "http://localhost",
	}
}

// WithDefaults fills zero fields from DefaultEngineConfig.
func (c EngineConfig) WithDefaults() EngineConfig {
	d := DefaultEngineConfig()
	if c.RenderTimeout == 0 {
		c.RenderTimeout = d.RenderTimeout
	}
	if c.MemoryLimitMB <= 0 {
		c.MemoryLimitMB = d.MemoryLimitMB
	}
	if c.MaxFetchRequests <= 0 {
		c.MaxFetchRequests = d.MaxFetchRequests
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = d.MaxResponseBytes
	}
	if c.MaxScriptSizeKB <= 0 {
		c.MaxScriptSizeKB = d.MaxScriptSizeKB
	}
	if c.Origin == "" {
		c.Origin = d.Origin
	}
	return c
}
