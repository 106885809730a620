package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Harshitk-cp/factgate/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// MetricsCollector records request counts and latency per route pattern.
type MetricsCollector struct {
	metrics *metrics.Metrics
}

func NewMetricsCollector(m *metrics.Metrics) *MetricsCollector {
	return &MetricsCollector{metrics: m}
}

func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		// The pattern keeps label cardinality bounded; unmatched paths share one label.
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		mc.metrics.HTTPRequest(r.Method, route, strconv.Itoa(rw.statusCode), time.Since(start).Seconds())
	})
}
