package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, defaultTimeoutMS, cfg.Gateway.TimeoutMS)
	assert.Equal(t, defaultHealthIntervalMS, cfg.Gateway.HealthIntervalMS)
	assert.Equal(t, StrategyCircuitBreaker, cfg.Gateway.FallbackStrategy)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 30*time.Second, cfg.Gateway.RequestTimeout())
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
gateway:
  enabled: true
  base_url: http://gateway.local:8080
  api_key: test-key
  timeout_ms: 5000
  retries: 2
  fallback_strategy: exponential_backoff
  health_interval_ms: 1000
  rate_limit:
    requests_per_min: 120
    burst: 10
  breaker:
    max_failures: 3
    timeout_ms: 10000
    half_open_max_calls: 2
routing:
  overrides:
    writing:
      primary: openai/gpt-4o
      fallback: openai/gpt-4o-mini
      fallback_provider: anthropic
      cost_tier: premium
direct:
  providers:
    openai:
      base_url: https://api.openai.com/v1
      api_key: sk-test
      model: gpt-4o-mini
logger:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Gateway.Enabled)
	assert.Equal(t, "http://gateway.local:8080", cfg.Gateway.BaseURL)
	assert.Equal(t, 2, cfg.Gateway.Retries)
	assert.Equal(t, StrategyExponentialBackoff, cfg.Gateway.FallbackStrategy)
	assert.Equal(t, time.Second, cfg.Gateway.HealthInterval())
	assert.Equal(t, uint32(3), cfg.Gateway.Breaker.MaxFailures)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Breaker.BreakerTimeout())
	assert.Equal(t, float64(120), cfg.Gateway.RateLimit.RequestsPerMin)
	assert.Equal(t, "openai/gpt-4o", cfg.Routing.Overrides["writing"].Primary)
	assert.Equal(t, "sk-test", cfg.Direct.Providers["openai"].APIKey)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MODELRELAY_GATEWAY_BASE_URL", "http://env.gateway:9090")
	t.Setenv("MODELRELAY_GATEWAY_API_KEY", "env-key")
	t.Setenv("MODELRELAY_GATEWAY_ENABLED", "true")
	t.Setenv("MODELRELAY_GATEWAY_TIMEOUT_MS", "1234")
	t.Setenv("MODELRELAY_LOGGER_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://env.gateway:9090", cfg.Gateway.BaseURL)
	assert.Equal(t, "env-key", cfg.Gateway.APIKey)
	assert.True(t, cfg.Gateway.Enabled)
	assert.Equal(t, 1234, cfg.Gateway.TimeoutMS)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	path := writeConfig(t, `
gateway:
  fallback_strategy: optimistic
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestValidateRequiresBaseURLWhenEnabled(t *testing.T) {
	path := writeConfig(t, `
gateway:
  enabled: true
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestValidateDirectProviderBaseURL(t *testing.T) {
	path := writeConfig(t, `
direct:
  providers:
    openai:
      api_key: sk-test
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}
