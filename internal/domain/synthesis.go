package domain

import "time"

// TrustCheck is the verification outcome of one specialist claim.
type TrustCheck struct {
	Role       Role   `json:"role"`
	ClaimIndex int    `json:"claim_index"`
	Claim      Claim  `json:"claim"`
	Supported  bool   `json:"supported"`
	EvidenceID string `json:"evidence_id"`
	Reason     string `json:"reason"`
}

// SkepticChallenge lists the weaknesses found in the majority view. Raised
// reports whether they add up to a credible groupthink challenge; a challenge
// with no MajorityView means no majority formed.
type SkepticChallenge struct {
	Raised                bool     `json:"raised"`
	MajorityView          string   `json:"majority_view,omitempty"`
	MajoritySize          int      `json:"majority_size"`
	Weaknesses            []string `json:"weaknesses"`
	AlternativeHypothesis string   `json:"alternative_hypothesis,omitempty"`
	Strength              float64  `json:"strength"`
}

type LeaderSynthesis struct {
	Recommendation      string              `json:"recommendation"`
	Confidence          float64             `json:"confidence"`
	BaseConfidence      float64             `json:"base_confidence"`
	UnsupportedFraction float64             `json:"unsupported_fraction"`
	Rationale           string              `json:"rationale"`
	Participants        []Role              `json:"participants"`
	Excluded            []SpecialistFailure `json:"excluded,omitempty"`
	TrustChecks         []TrustCheck        `json:"trust_checks"`
	Challenge           SkepticChallenge    `json:"challenge"`
	CreatedAt           time.Time           `json:"created_at"`
}
