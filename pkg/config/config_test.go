package config

import (
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Address != ":8081" {
		t.Errorf("Server.Address = %q, want :8081", cfg.Server.Address)
	}
	if cfg.Backend.Driver != "http" || cfg.Backend.BaseURL != "https://metrics.internal" {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("Backend.Timeout = %v, want 5s", cfg.Backend.Timeout)
	}
	if cfg.Dashboard.GridColumns != 3 || cfg.Dashboard.EnableDragAndDrop {
		t.Errorf("Dashboard = %+v", cfg.Dashboard)
	}
	if cfg.Cache.Driver != "redis" || cfg.Cache.TTL != time.Minute {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Cache.Prefix != "metricsboard" {
		t.Errorf("Cache.Prefix default lost, got %q", cfg.Cache.Prefix)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Observability.LogLevel)
	}
}

func TestLoad_missing_file(t *testing.T) {
	if _, err := Load("testdata/nonexistent.yaml"); err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_unknown_field(t *testing.T) {
	if _, err := Load("testdata/unknown_field.yaml"); err == nil {
		t.Fatal("Load() with unknown field should return error")
	}
}

func TestLoad_invalid_driver(t *testing.T) {
	if _, err := Load("testdata/invalid_driver.yaml"); err == nil {
		t.Fatal("Load() with unsupported driver should return error")
	}
}

func TestLoad_empty_path_uses_defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Driver != "memory" {
		t.Errorf("default Backend.Driver = %q, want memory", cfg.Backend.Driver)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Dashboard.GridColumns != 4 {
		t.Errorf("default GridColumns = %d, want 4", cfg.Dashboard.GridColumns)
	}
	if cfg.Dashboard.RequestTimeout != 15*time.Second {
		t.Errorf("default RequestTimeout = %v, want 15s", cfg.Dashboard.RequestTimeout)
	}
	if !cfg.Dashboard.EnableDragAndDrop {
		t.Error("default EnableDragAndDrop = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("METRICSBOARD_SERVER_ADDRESS", ":7000")
	t.Setenv("METRICSBOARD_DASHBOARD_ENABLE_DRAG_AND_DROP", "false")
	t.Setenv("METRICSBOARD_DASHBOARD_REQUEST_TIMEOUT", "3s")
	t.Setenv("METRICSBOARD_OBSERVABILITY_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Address != ":7000" {
		t.Errorf("Server.Address = %q, want :7000", cfg.Server.Address)
	}
	if cfg.Dashboard.EnableDragAndDrop {
		t.Error("EnableDragAndDrop override not applied")
	}
	if cfg.Dashboard.RequestTimeout != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want 3s", cfg.Dashboard.RequestTimeout)
	}
	if cfg.Observability.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.Observability.LogLevel)
	}
}

func TestEnvOverridesIgnoreMalformedValues(t *testing.T) {
	cfg := Defaults()
	env := map[string]string{
		"METRICSBOARD_DASHBOARD_REQUEST_TIMEOUT":      "soon",
		"METRICSBOARD_DASHBOARD_ENABLE_DRAG_AND_DROP": "maybe",
	}
	applyEnvOverrides(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Dashboard.RequestTimeout != 15*time.Second || !cfg.Dashboard.EnableDragAndDrop {
		t.Errorf("malformed overrides should be ignored, got %+v", cfg.Dashboard)
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(ObservabilityConfig{LogLevel: "bogus"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Error("unknown level should fall back to info")
	}
}
