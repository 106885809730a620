package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{
		"SERVER_PORT", "LLM_PROVIDERS", "STRICT_PROVIDERS",
		"BREAKER_FAILURE_THRESHOLD", "BREAKER_STRICT_FAILURE_THRESHOLD", "BREAKER_SUCCESS_THRESHOLD",
		"BREAKER_RECOVERY_TIMEOUT_SECONDS", "BREAKER_HALF_OPEN_MAX_CALLS", "BREAKER_IGNORE_CANCELED",
		"PROVIDER_TIMEOUT_SECONDS", "DOUBTER_ENABLED", "DEBATE_MAX_CONCURRENCY", "AUDIT_BUFFER_SIZE",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOG_LEVEL", "TRUST_VALUE_TOLERANCE",
	} {
		t.Setenv(k, "")
	}

	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, []string{"openai", "anthropic", "gemini", "cerebras"}, LLMProviders())
	assert.Equal(t, []string{"cerebras"}, StrictProviders())
	assert.Equal(t, 30*time.Second, ProviderTimeout())
	assert.True(t, DoubterEnabled())
	assert.Equal(t, 5, DebateMaxConcurrency())
	assert.Equal(t, 256, AuditBufferSize())
	assert.Equal(t, 100.0, RateLimitRPS())
	assert.Equal(t, 20, RateLimitBurst())
	assert.Equal(t, "info", LogLevel())
	assert.Equal(t, 0.01, TrustValueTolerance())

	cfg := BreakerConfig()
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 2, cfg.SuccessThreshold)
	assert.Equal(t, 60*time.Second, cfg.RecoveryTimeout)
	assert.Equal(t, 3, cfg.HalfOpenMaxCalls)
	assert.True(t, cfg.IsFailure(context.Canceled))
	assert.Equal(t, 3, StrictBreakerConfig().FailureThreshold)
}

func TestOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDERS", " Anthropic, mock ,,")
	t.Setenv("STRICT_PROVIDERS", "none")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "7")
	t.Setenv("BREAKER_RECOVERY_TIMEOUT_SECONDS", "5")
	t.Setenv("BREAKER_IGNORE_CANCELED", "true")
	t.Setenv("DOUBTER_ENABLED", "false")
	t.Setenv("DEBATE_MAX_CONCURRENCY", "-1")
	t.Setenv("TRUST_VALUE_TOLERANCE", "0.05")

	assert.Equal(t, []string{"anthropic", "mock"}, LLMProviders())
	assert.Empty(t, StrictProviders())
	assert.False(t, DoubterEnabled())
	assert.Equal(t, 5, DebateMaxConcurrency(), "non-positive values fall back to the default")
	assert.Equal(t, 0.05, TrustValueTolerance())

	cfg := BreakerConfig()
	assert.Equal(t, 7, cfg.FailureThreshold)
	assert.Equal(t, 5*time.Second, cfg.RecoveryTimeout)
	assert.False(t, cfg.IsFailure(context.Canceled))
	assert.True(t, cfg.IsFailure(context.DeadlineExceeded))
	assert.True(t, cfg.IsFailure(errors.New("boom")))
}

func TestProviderAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("CEREBRAS_API_KEY", "c-key")

	assert.Equal(t, "sk-openai", ProviderAPIKey("openai"))
	assert.Equal(t, "sk-anthropic", ProviderAPIKey("anthropic"))
	assert.Equal(t, "g-key", ProviderAPIKey("gemini"))
	assert.Equal(t, "c-key", ProviderAPIKey("cerebras"))
	assert.Empty(t, ProviderAPIKey("mock"))
}

func TestLoad_ReadsEnvAndSecretFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("FACTGATE_TEST_PORT_MARKER=9191\n"), 0o600))
	require.NoError(t, os.WriteFile(envFile+".secret", []byte("FACTGATE_TEST_SECRET_MARKER=s3cret\n"), 0o600))

	t.Setenv("FACTGATE_ENV", envFile)
	t.Cleanup(func() {
		os.Unsetenv("FACTGATE_TEST_PORT_MARKER")
		os.Unsetenv("FACTGATE_TEST_SECRET_MARKER")
	})

	require.NoError(t, Load())
	assert.Equal(t, "9191", os.Getenv("FACTGATE_TEST_PORT_MARKER"))
	assert.Equal(t, "s3cret", os.Getenv("FACTGATE_TEST_SECRET_MARKER"))
}
