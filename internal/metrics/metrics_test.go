package metrics

import (
	"testing"

	"github.com/Harshitk-cp/factgate/internal/breaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(prometheus.NewRegistry())
}

func TestObserveBreaker(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveBreaker("openai", breaker.StateClosed, breaker.StateOpen)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BreakerState.WithLabelValues("openai")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("openai", "closed", "open")))

	m.ObserveBreaker("openai", breaker.StateOpen, breaker.StateHalfOpen)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BreakerState.WithLabelValues("openai")))
}

func TestProviderAttempt_SkippedHasNoLatency(t *testing.T) {
	m := newTestMetrics(t)

	m.ProviderAttempt("openai", "skipped", 0)
	m.ProviderAttempt("anthropic", "success", 0.4)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("openai", "skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("anthropic", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProviderLatency))
}

func TestVerdictAndDebate(t *testing.T) {
	m := newTestMetrics(t)

	m.Verdict("reject")
	m.Verdict("reject")
	m.DebateOutcome("unresolvable", 0)
	m.AuditEventDropped()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.DoubterVerdicts.WithLabelValues("reject")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DebateOutcomes.WithLabelValues("unresolvable")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditDropped))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBreaker("openai", breaker.StateClosed, breaker.StateOpen)
		m.ProviderAttempt("openai", "failed", 1)
		m.Verdict("accept")
		m.DebateOutcome("synthesized", 0.5)
		m.AuditEventDropped()
		m.HTTPRequest("GET", "/health", "200", 0.01)
	})
}

func TestHTTPRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.HTTPRequest("POST", "/v1/debates", "200", 0.2)
	m.HTTPRequest("POST", "/v1/debates", "422", 0.1)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/v1/debates", "422")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPDuration))
}
