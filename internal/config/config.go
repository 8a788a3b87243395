// Package config loads exporter settings from an optional YAML file and
// the environment. Environment variables override file values; command
// line flags, applied by the caller, override both.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration accepts "1h30m" notation in both YAML files and environment
// variables.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler, which the env parser
// uses.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration value.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the exporter settings shared by the CLI and the MCP server.
type Config struct {
	Token   string `yaml:"token" env:"CANVAS_TOKEN"`
	BaseURL string `yaml:"base_url" env:"CANVAS_BASE_URL"`

	Format string  `yaml:"format" env:"CANVAS_FORMAT"`
	Scale  float64 `yaml:"scale" env:"CANVAS_SCALE"`
	OutDir string  `yaml:"out_dir" env:"CANVAS_OUT_DIR"`

	NoCache  bool     `yaml:"no_cache" env:"CANVAS_NO_CACHE"`
	CacheDir string   `yaml:"cache_dir" env:"CANVAS_CACHE_DIR"`
	CacheTTL Duration `yaml:"cache_ttl" env:"CANVAS_CACHE_TTL"`

	LogLevel string `yaml:"log_level" env:"CANVAS_LOG_LEVEL"`
}

// Load builds the configuration: YAML file first (skipped when path is
// empty), environment variables on top, defaults last.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Format == "" {
		c.Format = "png"
	}
	if c.Scale <= 0 {
		c.Scale = 1
	}
	if c.OutDir == "" {
		c.OutDir = "canvas-assets"
	}
	if c.CacheDir == "" {
		c.CacheDir = ".cache"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = Duration(24 * time.Hour)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
