package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Fallback strategy selectors recognized by the orchestrator.
const (
	StrategyImmediate          = "immediate"
	StrategyExponentialBackoff = "exponential_backoff"
	StrategyCircuitBreaker     = "circuit_breaker"
)

// Config is the top-level application configuration.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Routing RoutingConfig `yaml:"routing"`
	Direct  DirectConfig  `yaml:"direct"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
	Usage   UsageConfig   `yaml:"usage"`
}

// GatewayConfig configures the protected gateway path.
type GatewayConfig struct {
	// Enabled gates whether the gateway is consulted at all. When false,
	// every request goes straight to the direct provider.
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// TimeoutMS bounds every gateway call, including health probes.
	TimeoutMS int `yaml:"timeout_ms"`
	// Retries is the per-tier retry budget for retryable errors on the
	// primary path. 0 keeps single-attempt-per-tier behavior.
	Retries int `yaml:"retries"`
	// FallbackStrategy selects how the primary tier is protected:
	// immediate | exponential_backoff | circuit_breaker.
	FallbackStrategy string `yaml:"fallback_strategy"`
	// HealthIntervalMS is the period between background health probes.
	HealthIntervalMS int `yaml:"health_interval_ms"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
}

// RateLimitConfig throttles outbound gateway calls.
type RateLimitConfig struct {
	RequestsPerMin float64 `yaml:"requests_per_min"`
	Burst          int     `yaml:"burst"`
}

// BreakerConfig configures the circuit breaker around the primary path.
type BreakerConfig struct {
	MaxFailures      uint32 `yaml:"max_failures"`
	TimeoutMS        int    `yaml:"timeout_ms"`
	HalfOpenMaxCalls uint32 `yaml:"half_open_max_calls"`
}

// RouteConfig is one routing-table override, keyed by agent type.
type RouteConfig struct {
	Primary          string `yaml:"primary"`
	Fallback         string `yaml:"fallback"`
	FallbackProvider string `yaml:"fallback_provider"`
	CostTier         string `yaml:"cost_tier"`
}

// RoutingConfig overrides entries of the built-in routing table.
type RoutingConfig struct {
	Overrides map[string]RouteConfig `yaml:"overrides"`
}

// DirectProviderConfig configures one named direct provider endpoint.
type DirectProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// DirectConfig configures the direct provider adapter.
type DirectConfig struct {
	TimeoutMS int                             `yaml:"timeout_ms"`
	Providers map[string]DirectProviderConfig `yaml:"providers"`
}

// LoggerConfig controls slog handler construction.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig controls OpenTelemetry setup.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// UsageConfig configures the optional SQLite usage ledger.
// An empty path disables recording.
type UsageConfig struct {
	Path string `yaml:"path"`
}

// Defaults.
const (
	defaultTimeoutMS        = 30_000
	defaultHealthIntervalMS = 30_000
)

// Load reads a YAML config file, applies environment overrides, fills
// defaults, and validates. An empty path yields the default config with
// environment overrides only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies MODELRELAY_* environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("MODELRELAY_GATEWAY_ENABLED"); v != "" {
		c.Gateway.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("MODELRELAY_GATEWAY_BASE_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("MODELRELAY_GATEWAY_API_KEY"); v != "" {
		c.Gateway.APIKey = v
	}
	if v := os.Getenv("MODELRELAY_GATEWAY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Gateway.TimeoutMS = n
		}
	}
	if v := os.Getenv("MODELRELAY_GATEWAY_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Gateway.Retries = n
		}
	}
	if v := os.Getenv("MODELRELAY_GATEWAY_FALLBACK_STRATEGY"); v != "" {
		c.Gateway.FallbackStrategy = v
	}
	if v := os.Getenv("MODELRELAY_GATEWAY_HEALTH_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Gateway.HealthIntervalMS = n
		}
	}
	if v := os.Getenv("MODELRELAY_LOGGER_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("MODELRELAY_LOGGER_FORMAT"); v != "" {
		c.Logger.Format = v
	}
	if v := os.Getenv("MODELRELAY_TRACER_ENABLED"); v != "" {
		c.Tracer.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("MODELRELAY_USAGE_PATH"); v != "" {
		c.Usage.Path = v
	}
}

func (c *Config) applyDefaults() {
	if c.Gateway.TimeoutMS <= 0 {
		c.Gateway.TimeoutMS = defaultTimeoutMS
	}
	if c.Gateway.HealthIntervalMS <= 0 {
		c.Gateway.HealthIntervalMS = defaultHealthIntervalMS
	}
	if c.Gateway.FallbackStrategy == "" {
		c.Gateway.FallbackStrategy = StrategyCircuitBreaker
	}
	if c.Direct.TimeoutMS <= 0 {
		c.Direct.TimeoutMS = defaultTimeoutMS
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Gateway.FallbackStrategy {
	case StrategyImmediate, StrategyExponentialBackoff, StrategyCircuitBreaker:
	default:
		return fmt.Errorf("gateway.fallback_strategy: unknown strategy %q", c.Gateway.FallbackStrategy)
	}
	if c.Gateway.Enabled && c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required when the gateway is enabled")
	}
	if c.Gateway.Retries < 0 {
		return fmt.Errorf("gateway.retries must be >= 0")
	}
	for name, p := range c.Direct.Providers {
		if p.BaseURL == "" {
			return fmt.Errorf("direct.providers[%s].base_url is required", name)
		}
	}
	return nil
}

// RequestTimeout returns the gateway call timeout as a duration.
func (g GatewayConfig) RequestTimeout() time.Duration {
	return time.Duration(g.TimeoutMS) * time.Millisecond
}

// HealthInterval returns the probe period as a duration.
func (g GatewayConfig) HealthInterval() time.Duration {
	return time.Duration(g.HealthIntervalMS) * time.Millisecond
}

// BreakerTimeout returns the breaker open timeout as a duration.
// Zero means "use the breaker default".
func (b BreakerConfig) BreakerTimeout() time.Duration {
	return time.Duration(b.TimeoutMS) * time.Millisecond
}

// RequestTimeout returns the direct provider call timeout as a duration.
func (d DirectConfig) RequestTimeout() time.Duration {
	return time.Duration(d.TimeoutMS) * time.Millisecond
}
