package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GenerateOptions are per-call parameters forwarded to a model provider.
type GenerateOptions struct {
	Model       string        `json:"model,omitempty"`
	System      string        `json:"system,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// LLMClient is an opaque model provider: it either returns text or fails.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

type AuditStore interface {
	Create(ctx context.Context, e *AuditEvent) error
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]AuditEvent, error)
	GetByID(ctx context.Context, id uuid.UUID) (*AuditEvent, error)
}
