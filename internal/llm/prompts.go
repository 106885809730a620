package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/factgate/internal/domain"
)

var ErrMalformedResponse = errors.New("malformed specialist response")

var roleFocus = map[domain.Role]string{
	domain.RoleEarnings:  "earnings quality, revenue and margin trends, guidance",
	domain.RoleMarket:    "price action, volume, sector and macro context",
	domain.RoleSentiment: "news flow, analyst revisions, positioning and sentiment",
	domain.RoleValuation: "multiples versus history and peers, intrinsic value",
	domain.RoleRisk:      "downside scenarios, leverage, volatility and tail risks",
}

const specialistPrompt = `You are the %s specialist on an investment review panel. Focus on %s.

Question:
%s

Verified evidence (cite evidence by id; do not invent evidence):
%s
Respond ONLY with a JSON object. No markdown, no explanation. Schema:
{"analysis":"...","recommendation":"buy|hold|sell","confidence":0.0-1.0,"key_points":["..."],"claims":[{"statement":"...","evidence_id":"<id>","metric":"<extracted value name>","value":0.0}]}

Every factual claim must cite the evidence_id it relies on.`

// BuildSpecialistPrompt renders the prompt sent to the provider for one role.
func BuildSpecialistPrompt(role domain.Role, question string, evidence []domain.VerifiedFact) string {
	focus, ok := roleFocus[role]
	if !ok {
		focus = "the question at hand"
	}

	var sb strings.Builder
	if len(evidence) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, f := range evidence {
		sb.WriteString(fmt.Sprintf("- id=%s status=%s", f.ID, f.Status))
		keys := make([]string, 0, len(f.ExtractedValues))
		for k := range f.ExtractedValues {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, f.ExtractedValues[k]))
		}
		sb.WriteString("\n")
	}

	return fmt.Sprintf(specialistPrompt, role, focus, question, sb.String())
}

// ParseSpecialistResponse decodes a provider's raw output for role.
func ParseSpecialistResponse(role domain.Role, provider, raw string) (*domain.SpecialistResponse, error) {
	result := stripFences(raw)

	var resp domain.SpecialistResponse
	if err := json.Unmarshal([]byte(result), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v (raw: %s)", ErrMalformedResponse, err, result)
	}

	resp.Role = role
	resp.Provider = provider
	resp.Recommendation = strings.ToLower(strings.TrimSpace(resp.Recommendation))
	if resp.Recommendation == "" {
		return nil, fmt.Errorf("%w: missing recommendation", ErrMalformedResponse)
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformedResponse, resp.Confidence)
	}
	return &resp, nil
}

// Strip markdown fences if present
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
