// Package config loads layered configuration: hardcoded defaults,
// optionally overridden by a local YAML file, finally overridden by
// environment variables prefixed APP__ (read with os.LookupEnv). The
// teacher's lflag library only registers the --config-file flag.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"gopkg.in/yaml.v3"
)

// Config is the fully resolved configuration for the ingestion service.
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		URL                   string `yaml:"url"`
		MaxConnections        int    `yaml:"max_connections"`
		MinConnections        int    `yaml:"min_connections"`
		ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
	} `yaml:"database"`

	Entsoe struct {
		SecurityToken      string `yaml:"security_token"`
		BaseURL            string `yaml:"base_url"`
		RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
		TimeoutSeconds     int    `yaml:"timeout_seconds"`
	} `yaml:"entsoe"`

	Scheduler struct {
		Enabled       bool     `yaml:"enabled"`
		FetchTimesCET []string `yaml:"fetch_times_cet"`
	} `yaml:"scheduler"`
}

// Default returns the hardcoded baseline configuration, before any file or
// environment overrides are applied.
func Default() Config {
	var c Config
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 8080

	c.Database.MaxConnections = 10
	c.Database.MinConnections = 2
	c.Database.ConnectTimeoutSeconds = 10

	c.Entsoe.BaseURL = "https://web-api.tp.entsoe.eu/api"
	c.Entsoe.RateLimitPerMinute = 100
	c.Entsoe.TimeoutSeconds = 30

	c.Scheduler.Enabled = true
	c.Scheduler.FetchTimesCET = []string{"13:00", "14:00", "15:00", "16:00"}

	return c
}

// Load builds the final Config: defaults, then localPath (if it exists),
// then APP__-prefixed environment variables.
func Load(localPath string) (Config, error) {
	cfg := Default()

	if localPath != "" {
		if err := applyYAMLFile(&cfg, localPath); err != nil {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("config: database.url is required")
	}
	if cfg.Entsoe.SecurityToken == "" {
		return Config{}, fmt.Errorf("config: entsoe.security_token is required")
	}
	return cfg, nil
}

func applyYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// envOverride looks up an APP__-prefixed environment variable
// (double-underscore separating nesting levels, e.g. APP__DATABASE__URL)
// and applies it through the supplied setter when present.
func envOverride(key string, set func(string)) {
	v, ok := os.LookupEnv("APP__" + key)
	if !ok || v == "" {
		return
	}
	set(v)
}

func envOverrideInt(key string, set func(int)) {
	envOverride(key, func(v string) {
		n, err := strconv.Atoi(v)
		if err == nil {
			set(n)
		}
	})
}

func envOverrideBool(key string, set func(bool)) {
	envOverride(key, func(v string) {
		b, err := strconv.ParseBool(v)
		if err == nil {
			set(b)
		}
	})
}

// applyEnvOverrides layers APP__-prefixed environment variables over cfg.
// This mirrors the teacher's per-package lflag.Do convention, consolidated
// into one loader since this service is a single binary rather than a
// plugin registry of independently configured providers.
func applyEnvOverrides(cfg *Config) {
	envOverride("SERVER__HOST", func(v string) { cfg.Server.Host = v })
	envOverrideInt("SERVER__PORT", func(v int) { cfg.Server.Port = v })

	envOverride("DATABASE__URL", func(v string) { cfg.Database.URL = v })
	envOverrideInt("DATABASE__MAX_CONNECTIONS", func(v int) { cfg.Database.MaxConnections = v })
	envOverrideInt("DATABASE__MIN_CONNECTIONS", func(v int) { cfg.Database.MinConnections = v })
	envOverrideInt("DATABASE__CONNECT_TIMEOUT_SECONDS", func(v int) { cfg.Database.ConnectTimeoutSeconds = v })

	envOverride("ENTSOE__SECURITY_TOKEN", func(v string) { cfg.Entsoe.SecurityToken = v })
	envOverride("ENTSOE__BASE_URL", func(v string) { cfg.Entsoe.BaseURL = v })
	envOverrideInt("ENTSOE__RATE_LIMIT_PER_MINUTE", func(v int) { cfg.Entsoe.RateLimitPerMinute = v })
	envOverrideInt("ENTSOE__TIMEOUT_SECONDS", func(v int) { cfg.Entsoe.TimeoutSeconds = v })

	envOverrideBool("SCHEDULER__ENABLED", func(v bool) { cfg.Scheduler.Enabled = v })
	envOverride("SCHEDULER__FETCH_TIMES_CET", func(v string) { cfg.Scheduler.FetchTimesCET = strings.Split(v, ",") })
}

// ConnectTimeout returns the configured database connect timeout as a
// time.Duration.
func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Database.ConnectTimeoutSeconds) * time.Second
}

// EntsoeTimeout returns the configured ENTSO-E client timeout as a
// time.Duration.
func (c Config) EntsoeTimeout() time.Duration {
	return time.Duration(c.Entsoe.TimeoutSeconds) * time.Second
}

// LocalConfigPathFlag registers the --config-file flag the way the teacher
// registers its per-package flags, returning a function to resolve it
// after lflag.Configure() has run.
func LocalConfigPathFlag() func() string {
	path := lflag.String("config-file", "config.local.yaml", "Path to a local YAML config override file")
	return func() string { return *path }
}
