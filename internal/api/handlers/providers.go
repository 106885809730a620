package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/factgate/internal/breaker"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProvidersHandler struct {
	registry *breaker.Registry
	order    []string
	logger   *zap.Logger
}

// NewProvidersHandler exposes breaker state. order is the failover priority.
func NewProvidersHandler(registry *breaker.Registry, order []string, logger *zap.Logger) *ProvidersHandler {
	return &ProvidersHandler{registry: registry, order: order, logger: logger}
}

type providerStatus struct {
	Priority int `json:"priority"`
	breaker.Stats
	RetryAfterSeconds float64 `json:"retry_after_seconds"`
}

type listProvidersResponse struct {
	Providers []providerStatus `json:"providers"`
}

func (h *ProvidersHandler) List(w http.ResponseWriter, r *http.Request) {
	priority := make(map[string]int, len(h.order))
	for i, name := range h.order {
		priority[name] = i
	}

	snapshot := h.registry.Snapshot()
	statuses := make([]providerStatus, len(h.order))
	extra := make([]providerStatus, 0)
	for _, s := range snapshot {
		st := providerStatus{Stats: s, RetryAfterSeconds: s.RetryAfter.Seconds()}
		if i, ok := priority[s.Name]; ok {
			st.Priority = i + 1
			statuses[i] = st
			continue
		}
		extra = append(extra, st)
	}

	out := make([]providerStatus, 0, len(snapshot))
	for _, st := range statuses {
		if st.Name != "" {
			out = append(out, st)
		}
	}
	out = append(out, extra...)
	writeJSON(w, http.StatusOK, listProvidersResponse{Providers: out})
}

func (h *ProvidersHandler) Reset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.registry.Reset(name); err != nil {
		if errors.Is(err, breaker.ErrUnknownBreaker) {
			writeError(w, http.StatusNotFound, "provider not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to reset provider")
		return
	}

	h.logger.Info("circuit breaker reset manually", zap.String("provider", name))

	gate, _ := h.registry.Lookup(name)
	writeJSON(w, http.StatusOK, gate.Stats())
}
