package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Harshitk-cp/factgate/internal/breaker"
	"github.com/Harshitk-cp/factgate/internal/domain"
	"github.com/Harshitk-cp/factgate/internal/llm"
	"github.com/Harshitk-cp/factgate/internal/service"
)

type GenerateHandler struct {
	generator service.Generator
	timeout   time.Duration
}

// NewGenerateHandler serves raw prompts through the failover sequencer.
// timeout bounds each provider attempt.
func NewGenerateHandler(gen service.Generator, timeout time.Duration) *GenerateHandler {
	return &GenerateHandler{generator: gen, timeout: timeout}
}

type generateOptions struct {
	Model       string  `json:"model,omitempty"`
	System      string  `json:"system,omitempty"`
	Temperature float32 `json:"temperature,omitempty" validate:"min=0,max=2"`
	MaxTokens   int     `json:"max_tokens,omitempty" validate:"min=0,max=32768"`
}

type generateRequest struct {
	Prompt  string          `json:"prompt" validate:"required,max=65536"`
	Options generateOptions `json:"options"`
}

func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.generator.Generate(r.Context(), req.Prompt, domain.GenerateOptions{
		Model:       req.Options.Model,
		System:      req.Options.System,
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
		Timeout:     h.timeout,
	})
	if err != nil {
		writeProviderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeProviderError maps failover errors to HTTP statuses. Breaker
// rejections carry a Retry-After hint. Exhaustion is matched before the
// context cases: its last attempt may have hit a per-attempt deadline.
func writeProviderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, breaker.ErrOpen), errors.Is(err, llm.ErrAllProvidersExhausted):
		if wait, ok := breaker.RetryAfter(err); ok && wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	case errors.Is(err, llm.ErrNoProviders):
		writeError(w, http.StatusServiceUnavailable, "no LLM providers configured")
	default:
		writeError(w, http.StatusBadGateway, "provider call failed")
	}
}
