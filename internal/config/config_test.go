package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canvas.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Token != "" {
		t.Errorf("Token = %q, want empty", cfg.Token)
	}
	if cfg.Format != "png" {
		t.Errorf("Format = %q, want %q", cfg.Format, "png")
	}
	if cfg.Scale != 1 {
		t.Errorf("Scale = %v, want 1", cfg.Scale)
	}
	if cfg.OutDir != "canvas-assets" {
		t.Errorf("OutDir = %q, want %q", cfg.OutDir, "canvas-assets")
	}
	if cfg.NoCache {
		t.Error("NoCache = true, want false")
	}
	if cfg.CacheDir != ".cache" {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, ".cache")
	}
	if cfg.CacheTTL.Std() != 24*time.Hour {
		t.Errorf("CacheTTL = %v, want 24h", cfg.CacheTTL.Std())
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfigFile(t, `
token: file-token
base_url: https://canvas.internal.example.com
format: svg
scale: 2
out_dir: exports
no_cache: true
cache_dir: /var/cache/canvas
cache_ttl: 90m
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Token != "file-token" {
		t.Errorf("Token = %q, want %q", cfg.Token, "file-token")
	}
	if cfg.BaseURL != "https://canvas.internal.example.com" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Format != "svg" {
		t.Errorf("Format = %q, want %q", cfg.Format, "svg")
	}
	if cfg.Scale != 2 {
		t.Errorf("Scale = %v, want 2", cfg.Scale)
	}
	if cfg.OutDir != "exports" {
		t.Errorf("OutDir = %q, want %q", cfg.OutDir, "exports")
	}
	if !cfg.NoCache {
		t.Error("NoCache = false, want true")
	}
	if cfg.CacheDir != "/var/cache/canvas" {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.CacheTTL.Std() != 90*time.Minute {
		t.Errorf("CacheTTL = %v, want 90m", cfg.CacheTTL.Std())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("CANVAS_TOKEN", "env-token")
	t.Setenv("CANVAS_OUT_DIR", "env-out")
	t.Setenv("CANVAS_CACHE_TTL", "45m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Token != "env-token" {
		t.Errorf("Token = %q, want %q", cfg.Token, "env-token")
	}
	if cfg.OutDir != "env-out" {
		t.Errorf("OutDir = %q, want %q", cfg.OutDir, "env-out")
	}
	if cfg.CacheTTL.Std() != 45*time.Minute {
		t.Errorf("CacheTTL = %v, want 45m", cfg.CacheTTL.Std())
	}
	if cfg.Format != "png" {
		t.Errorf("Format = %q, want default %q", cfg.Format, "png")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
token: file-token
format: svg
scale: 2
out_dir: exports
`)

	t.Setenv("CANVAS_TOKEN", "env-token")
	t.Setenv("CANVAS_FORMAT", "pdf")
	t.Setenv("CANVAS_SCALE", "3")
	t.Setenv("CANVAS_NO_CACHE", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Token != "env-token" {
		t.Errorf("Token = %q, want env value", cfg.Token)
	}
	if cfg.Format != "pdf" {
		t.Errorf("Format = %q, want env value", cfg.Format)
	}
	if cfg.Scale != 3 {
		t.Errorf("Scale = %v, want env value 3", cfg.Scale)
	}
	if !cfg.NoCache {
		t.Error("NoCache = false, want env value true")
	}
	if cfg.OutDir != "exports" {
		t.Errorf("OutDir = %q, want file value to survive", cfg.OutDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil, want read failure")
	}
	if !strings.Contains(err.Error(), "read config file") {
		t.Errorf("error = %v, want mention of read config file", err)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfigFile(t, "format: [unclosed")

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() error = nil, want parse failure")
	}
	if !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("error = %v, want mention of parse config file", err)
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := writeConfigFile(t, "cache_ttl: soon")

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() error = nil, want duration failure")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v, want mention of invalid duration", err)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1h30m")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Std() != 90*time.Minute {
		t.Errorf("Duration = %v, want 1h30m", d.Std())
	}

	if err := d.UnmarshalText([]byte("whenever")); err == nil {
		t.Error("UnmarshalText() error = nil, want failure")
	}
}
