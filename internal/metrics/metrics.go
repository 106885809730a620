// Package metrics holds the prometheus collectors of the verification pipeline.
//
// All recording methods are safe on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"github.com/Harshitk-cp/factgate/internal/breaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "factgate"

type Metrics struct {
	// BreakerState is the current phase per provider (0 closed, 1 open, 2 half_open).
	BreakerState *prometheus.GaugeVec

	// BreakerTransitions counts phase changes. Labels: provider, from, to
	BreakerTransitions *prometheus.CounterVec

	// ProviderAttempts counts failover attempts. Labels: provider, outcome (success, failed, skipped)
	ProviderAttempts *prometheus.CounterVec

	ProviderLatency *prometheus.HistogramVec

	// DoubterVerdicts counts fact reviews. Labels: verdict
	DoubterVerdicts *prometheus.CounterVec

	// DebateOutcomes counts synthesis rounds. Labels: outcome (synthesized, unresolvable, canceled)
	DebateOutcomes *prometheus.CounterVec

	SynthesisConfidence prometheus.Histogram

	AuditDropped prometheus.Counter

	// HTTPRequests counts served requests. Labels: method, route, status
	HTTPRequests *prometheus.CounterVec

	HTTPDuration *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Current circuit breaker phase by provider (0 closed, 1 open, 2 half_open)",
		}, []string{"provider"}),
		BreakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker phase transitions",
		}, []string{"provider", "from", "to"}),
		ProviderAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "attempts_total",
			Help:      "Provider attempts made by the failover sequencer",
		}, []string{"provider", "outcome"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Latency of provider calls that were actually issued",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		DoubterVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "doubter",
			Name:      "verdicts_total",
			Help:      "Fact review verdicts",
		}, []string{"verdict"}),
		DebateOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "debate",
			Name:      "outcomes_total",
			Help:      "Debate round outcomes",
		}, []string{"outcome"}),
		SynthesisConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "debate",
			Name:      "synthesis_confidence",
			Help:      "Final confidence of synthesized decisions",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Audit events dropped because the buffer was full",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveBreaker is shaped to be used as breaker.Config.OnStateChange.
func (m *Metrics) ObserveBreaker(name string, from, to breaker.State) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(to))
	m.BreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}

func (m *Metrics) ProviderAttempt(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ProviderAttempts.WithLabelValues(provider, outcome).Inc()
	if outcome != "skipped" {
		m.ProviderLatency.WithLabelValues(provider).Observe(seconds)
	}
}

func (m *Metrics) Verdict(verdict string) {
	if m == nil {
		return
	}
	m.DoubterVerdicts.WithLabelValues(verdict).Inc()
}

func (m *Metrics) DebateOutcome(outcome string, confidence float64) {
	if m == nil {
		return
	}
	m.DebateOutcomes.WithLabelValues(outcome).Inc()
	if outcome == "synthesized" {
		m.SynthesisConfidence.Observe(confidence)
	}
}

func (m *Metrics) AuditEventDropped() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}

func (m *Metrics) HTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}
