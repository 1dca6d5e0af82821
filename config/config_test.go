package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quicpulse/quicpulse/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.DefaultScheme != "http" {
		t.Errorf("DefaultScheme = %q", cfg.DefaultScheme)
	}
	if cfg.MaxRedirects != 30 {
		t.Errorf("MaxRedirects = %d", cfg.MaxRedirects)
	}
	if cfg.TimeoutSeconds != 30 {
		t.Errorf("TimeoutSeconds = %f", cfg.TimeoutSeconds)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"default_scheme":"https","max_redirects":5}`), 0o644)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.DefaultScheme != "https" || cfg.MaxRedirects != 5 {
		t.Errorf("got %+v", cfg)
	}
	// Unset fields keep their defaults.
	if cfg.BenchConcurrency != 10 {
		t.Errorf("BenchConcurrency = %d", cfg.BenchConcurrency)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"defualt_scheme":"https"}`), 0o644)
	if _, err := config.Load(path); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("expected error")
	}
}
