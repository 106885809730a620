package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditKind string

const (
	AuditKindFactReview      AuditKind = "fact_review"
	AuditKindDebateSynthesis AuditKind = "debate_synthesis"
)

// AuditEvent is the structured record handed to the audit collaborator.
type AuditEvent struct {
	ID         uuid.UUID      `json:"id"`
	Kind       AuditKind      `json:"kind"`
	SubjectID  string         `json:"subject_id"`
	Verdict    string         `json:"verdict"`
	Penalty    float64        `json:"penalty"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
