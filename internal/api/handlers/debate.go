package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/factgate/internal/domain"
	"github.com/Harshitk-cp/factgate/internal/service"
)

type DebateHandler struct {
	debates *service.DebateService
}

func NewDebateHandler(debates *service.DebateService) *DebateHandler {
	return &DebateHandler{debates: debates}
}

type runDebateRequest struct {
	Question string                `json:"question" validate:"required,max=8192"`
	Roles    []domain.Role         `json:"roles,omitempty" validate:"max=5"`
	Evidence []domain.VerifiedFact `json:"evidence" validate:"max=100"`
}

type synthesizeRequest struct {
	Responses []domain.SpecialistResponse `json:"responses" validate:"max=20"`
	Failures  []domain.SpecialistFailure  `json:"failures,omitempty"`
	Evidence  []domain.VerifiedFact       `json:"evidence" validate:"max=100"`
}

func (h *DebateHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runDebateRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	synthesis, err := h.debates.Run(r.Context(), service.DebateRequest{
		Question: req.Question,
		Roles:    req.Roles,
		Evidence: req.Evidence,
	})
	if err != nil {
		writeDebateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, synthesis)
}

func (h *DebateHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	synthesis, err := h.debates.Synthesize(r.Context(), req.Responses, req.Failures, req.Evidence)
	if err != nil {
		writeDebateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, synthesis)
}

func writeDebateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrDuplicateRole),
		errors.Is(err, service.ErrInvalidResponse):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnresolvableDebate):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeProviderError(w, err)
	}
}
