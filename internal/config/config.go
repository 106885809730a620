package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Harshitk-cp/factgate/internal/breaker"
	"github.com/joho/godotenv"
)

// Load reads the .env file specified by FACTGATE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("FACTGATE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	return intOr("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL is optional. When empty, audit events only go to the log.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// LLMProviders returns the failover list in priority order.
// Defaults to "openai,anthropic,gemini,cerebras".
// Valid values: openai, anthropic, gemini, cerebras, mock
func LLMProviders() []string {
	p := splitList(os.Getenv("LLM_PROVIDERS"))
	if len(p) == 0 {
		return []string{"openai", "anthropic", "gemini", "cerebras"}
	}
	return p
}

// StrictProviders returns the providers guarded by the stricter breaker tier.
// Defaults to "cerebras". Set to "none" for no strict tier.
func StrictProviders() []string {
	raw := os.Getenv("STRICT_PROVIDERS")
	if raw == "" {
		return []string{"cerebras"}
	}
	if strings.EqualFold(raw, "none") {
		return nil
	}
	return splitList(raw)
}

// ProviderAPIKey returns the API key for the named LLM provider.
func ProviderAPIKey(name string) string {
	switch name {
	case "anthropic":
		return AnthropicAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

func BreakerFailureThreshold() int {
	return intOr("BREAKER_FAILURE_THRESHOLD", 5)
}

func BreakerStrictFailureThreshold() int {
	return intOr("BREAKER_STRICT_FAILURE_THRESHOLD", 3)
}

func BreakerSuccessThreshold() int {
	return intOr("BREAKER_SUCCESS_THRESHOLD", 2)
}

// BreakerRecoveryTimeout defaults to 60 seconds.
func BreakerRecoveryTimeout() time.Duration {
	return time.Duration(intOr("BREAKER_RECOVERY_TIMEOUT_SECONDS", 60)) * time.Second
}

func BreakerHalfOpenMaxCalls() int {
	return intOr("BREAKER_HALF_OPEN_MAX_CALLS", 3)
}

// BreakerIgnoreCanceled reports whether a caller cancellation should be left
// out of the failure count. Timeouts are always failures.
func BreakerIgnoreCanceled() bool {
	return boolOr("BREAKER_IGNORE_CANCELED", false)
}

// BreakerConfig assembles the default-tier policy from the environment.
func BreakerConfig() breaker.Config {
	cfg := breaker.Config{
		FailureThreshold: BreakerFailureThreshold(),
		SuccessThreshold: BreakerSuccessThreshold(),
		RecoveryTimeout:  BreakerRecoveryTimeout(),
		HalfOpenMaxCalls: BreakerHalfOpenMaxCalls(),
		IsFailure:        breaker.AnyError,
	}
	if BreakerIgnoreCanceled() {
		cfg.IsFailure = breaker.IgnoreCanceled
	}
	return cfg
}

// StrictBreakerConfig is BreakerConfig with the strict failure threshold.
func StrictBreakerConfig() breaker.Config {
	cfg := BreakerConfig()
	cfg.FailureThreshold = BreakerStrictFailureThreshold()
	return cfg
}

// ProviderTimeout bounds each individual provider call. Defaults to 30 seconds.
func ProviderTimeout() time.Duration {
	return time.Duration(intOr("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second
}

func DoubterEnabled() bool {
	return boolOr("DOUBTER_ENABLED", true)
}

func DebateMaxConcurrency() int {
	return intOr("DEBATE_MAX_CONCURRENCY", 5)
}

func AuditBufferSize() int {
	return intOr("AUDIT_BUFFER_SIZE", 256)
}

// TrustValueTolerance is the relative tolerance for matching a quoted claim
// value against the fact it cites. Defaults to 0.01.
func TrustValueTolerance() float64 {
	tol, err := strconv.ParseFloat(os.Getenv("TRUST_VALUE_TOLERANCE"), 64)
	if err != nil || tol < 0 {
		return 0.01
	}
	return tol
}

// APIKey is the static key clients must present. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return intOr("RATE_LIMIT_BURST", 20)
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// intOr returns the positive integer in key, or def.
func intOr(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func boolOr(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
