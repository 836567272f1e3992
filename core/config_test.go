package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Breaker.WindowSize != 20 || cfg.Breaker.MinFailures != 5 {
		t.Errorf("breaker defaults = %+v", cfg.Breaker)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry defaults = %+v", cfg.Retry)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
service_name: pf-test
http_addr: ":9090"
pattern_dir: /opt/patterns
request_timeout: 10s
cache_capacity: 128
breaker:
  window_size: 50
  failure_ratio: 0.6
  min_failures: 10
  cooldown: 1m
  cooldown_ceiling: 5m
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.ServiceName != "pf-test" || cfg.HTTPAddr != ":9090" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("request_timeout = %v", cfg.RequestTimeout)
	}
	if cfg.Breaker.WindowSize != 50 || cfg.Breaker.Cooldown != time.Minute {
		t.Errorf("breaker overrides not applied: %+v", cfg.Breaker)
	}
	// Unset fields keep their defaults.
	if cfg.MaxParallelWidth != 16 {
		t.Errorf("unset field lost its default: %d", cfg.MaxParallelWidth)
	}
}

func TestLoadConfigEnvPrecedence(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://generic:6379")
	t.Setenv("PATTERNFLOW_REDIS_URL", "redis://specific:6379")
	t.Setenv("PATTERNFLOW_MAX_IN_FLIGHT", "8")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.RedisURL != "redis://specific:6379" {
		t.Errorf("PATTERNFLOW_REDIS_URL must win over REDIS_URL: %q", cfg.RedisURL)
	}
	if cfg.MaxInFlight != 8 {
		t.Errorf("max in flight = %d", cfg.MaxInFlight)
	}
}

func TestLoadConfigOptionsWinOverEnv(t *testing.T) {
	t.Setenv("PATTERNFLOW_PATTERN_DIR", "/from/env")

	cfg, err := LoadConfig("", WithPatternDir("/from/option"), WithHTTPAddr(":7070"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.PatternDir != "/from/option" {
		t.Errorf("option must win over env: %q", cfg.PatternDir)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Errorf("http addr = %q", cfg.HTTPAddr)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("breaker:\n  failure_ratio: 1.5\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadConfig(path); !IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/no/such/config.yaml"); err == nil {
		t.Fatal("missing config file must fail")
	}
}
