package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/factgate/internal/domain"
	"github.com/Harshitk-cp/factgate/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxAuditListLimit = 500

// AuditHandler reads the audit trail. A nil store means auditing is
// log-only and every read answers 503.
type AuditHandler struct {
	store  domain.AuditStore
	logger *zap.Logger
}

func NewAuditHandler(s domain.AuditStore, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{store: s, logger: logger}
}

type listAuditResponse struct {
	Events []domain.AuditEvent `json:"events"`
}

func (h *AuditHandler) ListBySubject(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store not configured")
		return
	}

	subject := chi.URLParam(r, "subject")

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 || l > maxAuditListLimit {
			writeError(w, http.StatusBadRequest, "invalid limit (1-500)")
			return
		}
		limit = l
	}

	events, err := h.store.ListBySubject(r.Context(), subject, limit)
	if err != nil {
		h.logger.Error("failed to list audit events", zap.String("subject_id", subject), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list audit events")
		return
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}

	writeJSON(w, http.StatusOK, listAuditResponse{Events: events})
}

func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid audit event id")
		return
	}

	event, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "audit event not found")
			return
		}
		h.logger.Error("failed to get audit event", zap.String("id", id.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get audit event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}
