package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/factgate/internal/domain"
	"github.com/Harshitk-cp/factgate/internal/service"
)

type ReviewHandler struct {
	doubter *service.DoubterService
}

func NewReviewHandler(doubter *service.DoubterService) *ReviewHandler {
	return &ReviewHandler{doubter: doubter}
}

type reviewFactRequest struct {
	Fact              *domain.VerifiedFact `json:"fact" validate:"required"`
	InitialConfidence *float64             `json:"initial_confidence" validate:"omitempty,min=0,max=1"`
}

type reviewFactResponse struct {
	Report             *domain.DoubterReport `json:"report"`
	AdjustedConfidence float64               `json:"adjusted_confidence"`
}

func (h *ReviewHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req reviewFactRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !domain.ValidFactStatus(string(req.Fact.Status)) {
		writeError(w, http.StatusBadRequest, "fact.status must be success or error")
		return
	}

	initial := 1.0
	if req.InitialConfidence != nil {
		initial = *req.InitialConfidence
	}

	report := h.doubter.Review(r.Context(), req.Fact)
	writeJSON(w, http.StatusOK, reviewFactResponse{
		Report:             report,
		AdjustedConfidence: service.AdjustConfidence(initial, report),
	})
}
