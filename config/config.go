// Package config provides configuration management for quicpulse.  It
// supports JSON-based configuration loading with safe defaults; the loaded
// value is shared read-only across goroutines after startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the defaults an invocation starts from before flags are
// applied.
type Config struct {
	// DefaultScheme is prepended to scheme-less URLs ("http" or "https").
	DefaultScheme string `json:"default_scheme"`

	// TimeoutSeconds is the default per-request timeout; zero disables it.
	TimeoutSeconds float64 `json:"timeout_seconds"`

	// MaxRedirects is loaded from the file but not consulted: the redirect
	// cap comes from --max-redirects (default 30).
	MaxRedirects int `json:"max_redirects"`

	// SessionsDir overrides where named session files live.
	SessionsDir string `json:"sessions_dir"`

	// Verify is the default TLS verification policy ("yes", "no", or a CA
	// bundle path).
	Verify string `json:"verify"`

	// BenchConcurrency and BenchRequests size --bench runs when the flags
	// are omitted.
	BenchConcurrency int `json:"bench_concurrency"`
	BenchRequests    int `json:"bench_requests"`

	// FuzzConcurrency sizes --fuzz runs when the flag is omitted.
	FuzzConcurrency int `json:"fuzz_concurrency"`
}

// Load reads a JSON config file.  Unknown fields are rejected so typos
// surface at startup instead of silently doing nothing.
func Load(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 – filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	cfg := Default()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	return cfg, nil
}

// Default returns a Config pre-filled with sensible defaults.  Each call
// returns a fresh copy the caller may mutate.
func Default() *Config {
	return &Config{
		DefaultScheme:    "http",
		TimeoutSeconds:   30,
		MaxRedirects:     30,
		Verify:           "yes",
		BenchConcurrency: 10,
		BenchRequests:    100,
		FuzzConcurrency:  5,
	}
}

// ResolveSessionsDir returns the directory for named session files,
// defaulting under the user config directory.
func (c *Config) ResolveSessionsDir() string {
	if c.SessionsDir != "" {
		return c.SessionsDir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		base = home
	}
	return filepath.Join(base, "quicpulse", "sessions")
}
