package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration. Precedence, lowest to highest:
// built-in defaults, YAML file, environment variables, explicit options.
type Config struct {
	ServiceName string `yaml:"service_name"`
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`

	// PatternDir is the pattern source directory enumerated at startup.
	PatternDir string `yaml:"pattern_dir"`

	// RedisURL enables the Redis backends for the pack store and execution
	// cache. Empty means in-memory backends.
	RedisURL string `yaml:"redis_url"`

	// Request handling limits (spec'd resource model).
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	MaxInFlight        int           `yaml:"max_in_flight"`
	MaxParallelWidth   int           `yaml:"max_parallel_width"`
	MaxStepsPerPattern int           `yaml:"max_steps_per_pattern"`

	// Execution cache sizing.
	CacheCapacity int `yaml:"cache_capacity"`

	// Circuit breaker policy, per agent/capability pair.
	Breaker BreakerConfig `yaml:"breaker"`

	// Retry policy for transient failures.
	Retry RetryPolicy `yaml:"retry"`

	// Intent router score floor.
	IntentThreshold int `yaml:"intent_threshold"`

	// Telemetry switches.
	TraceStdout bool `yaml:"trace_stdout"`

	// AnthropicAPIKey enables ClaudeAgent's live mode. Empty means the
	// deterministic offline narrative is used.
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
}

// BreakerConfig carries the circuit breaker policy of the runtime. These are
// policy values, not per-agent tuning; a single config governs every breaker.
type BreakerConfig struct {
	WindowSize      int           `yaml:"window_size"`      // sliding window of last N invocations
	FailureRatio    float64       `yaml:"failure_ratio"`    // open at >= this failure rate
	MinFailures     int           `yaml:"min_failures"`     // and at least this many failures
	Cooldown        time.Duration `yaml:"cooldown"`         // OPEN -> HALF_OPEN
	CooldownCeiling time.Duration `yaml:"cooldown_ceiling"` // doubling cap
}

// RetryPolicy carries the transient-failure retry policy.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "patternflow",
		HTTPAddr:           ":8080",
		LogLevel:           "info",
		PatternDir:         "patterns",
		RequestTimeout:     30 * time.Second,
		MaxInFlight:        64,
		MaxParallelWidth:   16,
		MaxStepsPerPattern: 100,
		CacheCapacity:      4096,
		Breaker: BreakerConfig{
			WindowSize:      20,
			FailureRatio:    0.5,
			MinFailures:     5,
			Cooldown:        30 * time.Second,
			CooldownCeiling: 10 * time.Minute,
		},
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   250 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
		IntentThreshold: 3,
	}
}

// ConfigOption mutates a Config during LoadConfig.
type ConfigOption func(*Config)

// WithRedisURL overrides the Redis connection URL.
func WithRedisURL(url string) ConfigOption {
	return func(c *Config) { c.RedisURL = url }
}

// WithPatternDir overrides the pattern source directory.
func WithPatternDir(dir string) ConfigOption {
	return func(c *Config) { c.PatternDir = dir }
}

// WithHTTPAddr overrides the HTTP listen address.
func WithHTTPAddr(addr string) ConfigOption {
	return func(c *Config) { c.HTTPAddr = addr }
}

// LoadConfig builds a Config from defaults, an optional YAML file, the
// environment, and options, in that order.
func LoadConfig(path string, opts ...ConfigOption) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	// REDIS_URL first, PATTERNFLOW_REDIS_URL wins. Same convention as the
	// rest of the PATTERNFLOW_* variables.
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("PATTERNFLOW_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("PATTERNFLOW_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("PATTERNFLOW_PATTERN_DIR"); v != "" {
		cfg.PatternDir = v
	}
	if v := os.Getenv("PATTERNFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PATTERNFLOW_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxInFlight = n
		}
	}
	if v := os.Getenv("PATTERNFLOW_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
}

// Validate rejects configurations the runtime cannot operate under.
func (c *Config) Validate() error {
	if c.MaxStepsPerPattern <= 0 {
		return fmt.Errorf("max_steps_per_pattern must be positive: %w", ErrInvalidConfiguration)
	}
	if c.MaxParallelWidth <= 0 {
		return fmt.Errorf("max_parallel_width must be positive: %w", ErrInvalidConfiguration)
	}
	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		return fmt.Errorf("breaker failure_ratio must be in (0,1]: %w", ErrInvalidConfiguration)
	}
	if c.Breaker.WindowSize <= 0 {
		return fmt.Errorf("breaker window_size must be positive: %w", ErrInvalidConfiguration)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max_attempts must be positive: %w", ErrInvalidConfiguration)
	}
	return nil
}
