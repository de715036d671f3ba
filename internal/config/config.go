// Package config loads the arbor CLI configuration from YAML or TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aretw0/arbor/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config holds the CLI settings. Flags override file values.
type Config struct {
	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`

	// MetricsAddr, when set, serves /metrics and /healthz while a machine runs.
	MetricsAddr   string `yaml:"metrics_addr" toml:"metrics_addr"`
	MaxMicrosteps int    `yaml:"max_microsteps" toml:"max_microsteps"`

	// Tools is a tools file whose commands are bound as the "run_tool" service.
	Tools string `yaml:"tools" toml:"tools"`

	Completion CompletionConfig `yaml:"completion" toml:"completion"`
	Redis      RedisConfig      `yaml:"redis" toml:"redis"`
}

// CompletionConfig configures the completion service bound as the "complete" service.
type CompletionConfig struct {
	// Script is a scripted provider fixture.
	Script string `yaml:"script" toml:"script"`
	Model  string `yaml:"model" toml:"model"`
	// Cache is "memory", "redis" or empty for no cache.
	Cache    string        `yaml:"cache" toml:"cache"`
	CacheTTL time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`
}

// RedisConfig configures the redis completion cache.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

// Default returns the configuration used without a file.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Redis:     RedisConfig{Addr: "localhost:6379"},
	}
}

// Load reads path over the defaults. The format follows the extension: .toml is
// TOML, anything else is YAML (which includes JSON).
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Validate checks the enumerated settings.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format '%s'", c.LogFormat)
	}
	switch c.Completion.Cache {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("redis cache requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown completion cache '%s'", c.Completion.Cache)
	}
	if c.MaxMicrosteps < 0 {
		return fmt.Errorf("max_microsteps must not be negative")
	}
	return nil
}
