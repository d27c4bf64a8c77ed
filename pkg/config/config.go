// Package config loads metricsboard configuration from YAML files and
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Backend       BackendConfig       `yaml:"backend"`
	Dashboard     DashboardConfig     `yaml:"dashboard"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Address  string `yaml:"address"`
	BasePath string `yaml:"base_path"`
}

// BackendConfig selects and configures the dashboard backend.
type BackendConfig struct {
	// Driver is "http" or "memory".
	Driver   string        `yaml:"driver"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	SeedFile string        `yaml:"seed_file"`
}

// DashboardConfig tunes the orchestrator.
type DashboardConfig struct {
	GridColumns           int           `yaml:"grid_columns"`
	EnableDragAndDrop     bool          `yaml:"enable_drag_and_drop"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	FetchConcurrency      int           `yaml:"fetch_concurrency"`
	DisableSingleFallback bool          `yaml:"disable_single_fallback"`
}

// CacheConfig configures the reference list cache.
type CacheConfig struct {
	// Driver is "memory", "redis" or "none".
	Driver    string        `yaml:"driver"`
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	Prefix    string        `yaml:"prefix"`
}

// ObservabilityConfig describes logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	MetricsPath string `yaml:"metrics_path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Address:  ":9876",
			BasePath: "/api",
		},
		Backend: BackendConfig{
			Driver:  "memory",
			Timeout: 10 * time.Second,
		},
		Dashboard: DashboardConfig{
			GridColumns:       4,
			EnableDragAndDrop: true,
			RequestTimeout:    15 * time.Second,
			FetchConcurrency:  4,
		},
		Cache: CacheConfig{
			Driver: "memory",
			TTL:    5 * time.Minute,
			Prefix: "metricsboard",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			MetricsPath: "/metrics",
		},
	}
}

// Load reads a YAML config file, applies environment overrides and
// validates the result. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := decode(bytes.NewReader(data), cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Address == "" {
		errs = append(errs, "server.address is required")
	}
	switch c.Backend.Driver {
	case "memory":
	case "http":
		if c.Backend.BaseURL == "" {
			errs = append(errs, "backend.base_url is required for the http driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("backend.driver %q is not supported", c.Backend.Driver))
	}
	if c.Dashboard.GridColumns < 1 {
		errs = append(errs, "dashboard.grid_columns must be positive")
	}
	if c.Dashboard.FetchConcurrency < 1 {
		errs = append(errs, "dashboard.fetch_concurrency must be positive")
	}
	switch c.Cache.Driver {
	case "memory", "none", "":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required for the redis driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.driver %q is not supported", c.Cache.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads METRICSBOARD_* variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("METRICSBOARD_SERVER_ADDRESS"); ok && v != "" {
		cfg.Server.Address = v
	}
	if v, ok := lookup("METRICSBOARD_BACKEND_DRIVER"); ok && v != "" {
		cfg.Backend.Driver = v
	}
	if v, ok := lookup("METRICSBOARD_BACKEND_BASE_URL"); ok && v != "" {
		cfg.Backend.BaseURL = v
	}
	if v, ok := lookup("METRICSBOARD_BACKEND_API_KEY"); ok && v != "" {
		cfg.Backend.APIKey = v
	}
	if v, ok := lookup("METRICSBOARD_DASHBOARD_ENABLE_DRAG_AND_DROP"); ok && v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Dashboard.EnableDragAndDrop = enabled
		}
	}
	if v, ok := lookup("METRICSBOARD_DASHBOARD_REQUEST_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dashboard.RequestTimeout = d
		}
	}
	if v, ok := lookup("METRICSBOARD_CACHE_DRIVER"); ok && v != "" {
		cfg.Cache.Driver = v
	}
	if v, ok := lookup("METRICSBOARD_CACHE_REDIS_ADDR"); ok && v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v, ok := lookup("METRICSBOARD_OBSERVABILITY_LOG_LEVEL"); ok && v != "" {
		cfg.Observability.LogLevel = v
	}
}
