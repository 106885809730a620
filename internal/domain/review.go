package domain

import (
	"time"

	"github.com/google/uuid"
)

type Verdict string

const (
	VerdictAccept    Verdict = "accept"
	VerdictChallenge Verdict = "challenge"
	VerdictReject    Verdict = "reject"
)

func ValidVerdict(v string) bool {
	switch Verdict(v) {
	case VerdictAccept, VerdictChallenge, VerdictReject:
		return true
	}
	return false
}

// Severity orders verdicts so a review can only escalate: accept < challenge < reject.
func (v Verdict) Severity() int {
	switch v {
	case VerdictChallenge:
		return 1
	case VerdictReject:
		return 2
	default:
		return 0
	}
}

// Escalate returns the more severe of v and other.
func (v Verdict) Escalate(other Verdict) Verdict {
	if other.Severity() > v.Severity() {
		return other
	}
	return v
}

// DoubterReport is the reviewer's judgment on a single VerifiedFact.
// A reject verdict always carries a penalty of 1.0.
type DoubterReport struct {
	FactID                uuid.UUID `json:"fact_id"`
	Verdict               Verdict   `json:"verdict"`
	Concerns              []string  `json:"concerns"`
	ConfidencePenalty     float64   `json:"confidence_penalty"`
	Reasoning             string    `json:"reasoning"`
	SuggestedImprovements []string  `json:"suggested_improvements,omitempty"`
	ReviewedAt            time.Time `json:"reviewed_at"`
}
