package domain

type Role string

const (
	RoleEarnings  Role = "earnings"
	RoleMarket    Role = "market"
	RoleSentiment Role = "sentiment"
	RoleValuation Role = "valuation"
	RoleRisk      Role = "risk"
)

// AllRoles is the default specialist panel, in reporting order.
var AllRoles = []Role{RoleEarnings, RoleMarket, RoleSentiment, RoleValuation, RoleRisk}

func ValidRole(r string) bool {
	switch Role(r) {
	case RoleEarnings, RoleMarket, RoleSentiment, RoleValuation, RoleRisk:
		return true
	}
	return false
}

// Claim is a factual statement a specialist rests its opinion on. EvidenceID
// names the VerifiedFact it cites; Metric and Value optionally pin the claim
// to one extracted value of that fact.
type Claim struct {
	Statement  string   `json:"statement"`
	EvidenceID string   `json:"evidence_id"`
	Metric     string   `json:"metric,omitempty"`
	Value      *float64 `json:"value,omitempty"`
}

type SpecialistResponse struct {
	Role           Role     `json:"role"`
	Provider       string   `json:"provider,omitempty"`
	Analysis       string   `json:"analysis"`
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
	KeyPoints      []string `json:"key_points"`
	Claims         []Claim  `json:"claims"`
}

// SpecialistFailure records a specialist that produced no usable opinion.
type SpecialistFailure struct {
	Role  Role   `json:"role"`
	Error string `json:"error"`
}
