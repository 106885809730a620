package service

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Harshitk-cp/factgate/internal/domain"
	"go.uber.org/zap"
)

var ErrUnresolvableDebate = errors.New("unresolvable debate: no specialist produced an opinion")

const (
	// GroupthinkThreshold is the challenge strength at which the Skeptic flags
	// the majority view.
	GroupthinkThreshold = 0.5

	UnsupportedWeight = 0.5
	SkepticWeight     = 0.3

	DefaultValueTolerance = 0.01
	absoluteTolerance     = 1e-9

	unanimityWeight      = 0.3
	narrowSpreadWeight   = 0.2
	sharedEvidenceWeight = 0.2
	weakSupportWeight    = 0.3
	dissentWeight        = 0.3

	minUnanimousPanel = 3
	maxNarrowSpread   = 0.05
)

// SafetyProtocol turns independent specialist opinions into one decision in
// three stages: Trust verifies claims, Skeptic challenges the majority and
// Leader synthesizes. Each stage is a pure function of its inputs.
type SafetyProtocol struct {
	doubter   *DoubterService
	tolerance float64
	logger    *zap.Logger
}

// NewSafetyProtocol creates a protocol. doubter may be nil, in which case
// evidence is only checked for existence and execution status.
func NewSafetyProtocol(doubter *DoubterService, logger *zap.Logger) *SafetyProtocol {
	return &SafetyProtocol{
		doubter:   doubter,
		tolerance: DefaultValueTolerance,
		logger:    logger,
	}
}

// SetTolerance sets the relative tolerance used when a claim quotes a value.
func (p *SafetyProtocol) SetTolerance(tol float64) {
	if tol >= 0 {
		p.tolerance = tol
	}
}

// Run executes Trust, Skeptic and Leader in order.
func (p *SafetyProtocol) Run(responses []domain.SpecialistResponse, failures []domain.SpecialistFailure, evidence []domain.VerifiedFact) (*domain.LeaderSynthesis, error) {
	checks := p.Trust(responses, evidence)
	pruned := pruneUnsupported(responses, checks)
	challenge := p.Skeptic(pruned, checks)
	return p.Lead(responses, failures, checks, challenge)
}

// Trust checks every claim of every specialist against the evidence it cites.
// Checks are returned in response order, then claim order.
func (p *SafetyProtocol) Trust(responses []domain.SpecialistResponse, evidence []domain.VerifiedFact) []domain.TrustCheck {
	byID := make(map[string]*domain.VerifiedFact, len(evidence))
	for i := range evidence {
		byID[evidence[i].ID.String()] = &evidence[i]
	}

	checks := make([]domain.TrustCheck, 0)
	for _, r := range responses {
		for i, c := range r.Claims {
			supported, reason := p.verifyClaim(c, byID)
			checks = append(checks, domain.TrustCheck{
				Role:       r.Role,
				ClaimIndex: i,
				Claim:      c,
				Supported:  supported,
				EvidenceID: c.EvidenceID,
				Reason:     reason,
			})
		}
	}
	return checks
}

func (p *SafetyProtocol) verifyClaim(c domain.Claim, evidence map[string]*domain.VerifiedFact) (bool, string) {
	if c.EvidenceID == "" {
		return false, "no evidence cited"
	}
	fact, ok := evidence[c.EvidenceID]
	if !ok {
		return false, "cited evidence not found"
	}
	if !fact.Succeeded() {
		return false, "cited evidence failed to execute"
	}
	if p.doubter != nil && p.doubter.evaluate(fact).Verdict == domain.VerdictReject {
		return false, "cited evidence rejected by doubter"
	}

	if c.Metric == "" {
		return true, "evidence verified"
	}
	if c.Value == nil {
		if !fact.Has(c.Metric) {
			return false, fmt.Sprintf("metric %q not reported by evidence", c.Metric)
		}
		return true, "evidence verified"
	}
	got, ok := fact.Numeric(c.Metric)
	if !ok {
		return false, fmt.Sprintf("metric %q not reported by evidence", c.Metric)
	}
	if !withinTolerance(got, *c.Value, p.tolerance) {
		return false, fmt.Sprintf("metric %q is %g, claim states %g", c.Metric, got, *c.Value)
	}
	return true, "evidence verified"
}

func withinTolerance(got, want, rel float64) bool {
	diff := math.Abs(got - want)
	if diff <= absoluteTolerance {
		return true
	}
	return diff <= rel*math.Max(math.Abs(got), math.Abs(want))
}

type claimKey struct {
	role  domain.Role
	index int
}

// pruneUnsupported drops unsupported claims. A specialist whose claims were
// all unsupported is removed; one that made no claims is kept.
func pruneUnsupported(responses []domain.SpecialistResponse, checks []domain.TrustCheck) []domain.SpecialistResponse {
	unsupported := make(map[claimKey]bool)
	for _, c := range checks {
		if !c.Supported {
			unsupported[claimKey{c.Role, c.ClaimIndex}] = true
		}
	}

	pruned := make([]domain.SpecialistResponse, 0, len(responses))
	for _, r := range responses {
		if len(r.Claims) == 0 {
			pruned = append(pruned, r)
			continue
		}
		kept := make([]domain.Claim, 0, len(r.Claims))
		for i, c := range r.Claims {
			if !unsupported[claimKey{r.Role, i}] {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			continue
		}
		r.Claims = kept
		pruned = append(pruned, r)
	}
	return pruned
}

// Skeptic looks for a strict majority in the pruned panel and builds the
// strongest case that it is groupthink rather than genuine convergence.
func (p *SafetyProtocol) Skeptic(pruned []domain.SpecialistResponse, checks []domain.TrustCheck) domain.SkepticChallenge {
	challenge := domain.SkepticChallenge{Weaknesses: []string{}}

	view, size := majorityView(pruned)
	if view == "" {
		return challenge
	}
	challenge.MajorityView = view
	challenge.MajoritySize = size

	var majority, dissent []domain.SpecialistResponse
	for _, r := range pruned {
		if r.Recommendation == view {
			majority = append(majority, r)
		} else {
			dissent = append(dissent, r)
		}
	}

	var strength float64
	add := func(weight float64, format string, args ...any) {
		strength += weight
		challenge.Weaknesses = append(challenge.Weaknesses, fmt.Sprintf(format, args...))
	}

	if len(dissent) == 0 && size >= minUnanimousPanel {
		add(unanimityWeight, "all %d specialists agree on %q with no dissent", size, view)
	}

	lo, hi, mean := confidenceRange(majority)
	if size >= 2 && hi-lo <= maxNarrowSpread {
		add(narrowSpreadWeight, "majority confidences span only %.2f", hi-lo)
	}

	if size >= 2 {
		if n := distinctEvidence(majority); n <= 1 {
			add(sharedEvidenceWeight, "majority rests on %d shared evidence item(s)", n)
		}
	}

	members := make(map[domain.Role]bool, size)
	for _, r := range majority {
		members[r.Role] = true
	}
	var total, supported int
	for _, c := range checks {
		if !members[c.Role] {
			continue
		}
		total++
		if c.Supported {
			supported++
		}
	}
	if total > 0 && float64(supported)/float64(total) < 0.5 {
		add(weakSupportWeight, "only %d of %d majority claims are supported", supported, total)
	}

	var strongest *domain.SpecialistResponse
	for i := range dissent {
		if dissent[i].Confidence >= mean && (strongest == nil || dissent[i].Confidence > strongest.Confidence) {
			strongest = &dissent[i]
		}
	}
	if strongest != nil {
		add(dissentWeight, "%s specialist argues %q at confidence %.2f, at or above the majority mean %.2f",
			strongest.Role, strongest.Recommendation, strongest.Confidence, mean)
		challenge.AlternativeHypothesis = strongest.Recommendation
	}

	challenge.Strength = math.Min(strength, 1)
	challenge.Raised = challenge.Strength >= GroupthinkThreshold
	return challenge
}

// majorityView returns the recommendation held by strictly more than half of
// the panel, or "" when there is none.
func majorityView(responses []domain.SpecialistResponse) (string, int) {
	counts := make(map[string]int)
	for _, r := range responses {
		counts[r.Recommendation]++
	}
	for rec, n := range counts {
		if n*2 > len(responses) {
			return rec, n
		}
	}
	return "", 0
}

func confidenceRange(responses []domain.SpecialistResponse) (lo, hi, mean float64) {
	if len(responses) == 0 {
		return 0, 0, 0
	}
	lo, hi = responses[0].Confidence, responses[0].Confidence
	var sum float64
	for _, r := range responses {
		lo = math.Min(lo, r.Confidence)
		hi = math.Max(hi, r.Confidence)
		sum += r.Confidence
	}
	return lo, hi, sum / float64(len(responses))
}

func distinctEvidence(responses []domain.SpecialistResponse) int {
	seen := make(map[string]struct{})
	for _, r := range responses {
		for _, c := range r.Claims {
			if c.EvidenceID != "" {
				seen[c.EvidenceID] = struct{}{}
			}
		}
	}
	return len(seen)
}

// Lead produces the final recommendation. Failed specialists are listed as
// excluded and never vote; if none succeeded it returns ErrUnresolvableDebate.
func (p *SafetyProtocol) Lead(responses []domain.SpecialistResponse, failures []domain.SpecialistFailure, checks []domain.TrustCheck, challenge domain.SkepticChallenge) (*domain.LeaderSynthesis, error) {
	if len(responses) == 0 {
		p.logger.Warn("leader refused to synthesize", zap.Int("failed", len(failures)))
		return nil, ErrUnresolvableDebate
	}

	voters := pruneUnsupported(responses, checks)
	if len(voters) == 0 {
		voters = responses
	}
	recommendation := weightedVote(voters)

	var base float64
	participants := make([]domain.Role, 0, len(responses))
	for _, r := range responses {
		base += r.Confidence
		participants = append(participants, r.Role)
	}
	base /= float64(len(responses))

	var unsupported int
	for _, c := range checks {
		if !c.Supported {
			unsupported++
		}
	}
	var fraction float64
	if len(checks) > 0 {
		fraction = float64(unsupported) / float64(len(checks))
	}

	confidence := base * (1 - UnsupportedWeight*fraction)
	if challenge.Raised {
		confidence *= 1 - SkepticWeight*challenge.Strength
	}
	confidence = clamp01(confidence)

	synthesis := &domain.LeaderSynthesis{
		Recommendation:      recommendation,
		Confidence:          confidence,
		BaseConfidence:      base,
		UnsupportedFraction: fraction,
		Rationale:           rationale(recommendation, len(checks)-unsupported, len(checks), len(voters), challenge),
		Participants:        participants,
		Excluded:            failures,
		TrustChecks:         checks,
		Challenge:           challenge,
		CreatedAt:           time.Now(),
	}

	p.logger.Info("debate synthesized",
		zap.String("recommendation", recommendation),
		zap.Float64("confidence", confidence),
		zap.Float64("base_confidence", base),
		zap.Float64("unsupported_fraction", fraction),
		zap.Bool("challenge_raised", challenge.Raised),
		zap.Int("participants", len(participants)),
		zap.Int("excluded", len(failures)))

	return synthesis, nil
}

// weightedVote sums confidence per recommendation. Ties go to the larger
// group, then to the lexically smaller recommendation.
func weightedVote(responses []domain.SpecialistResponse) string {
	weight := make(map[string]float64)
	count := make(map[string]int)
	for _, r := range responses {
		weight[r.Recommendation] += r.Confidence
		count[r.Recommendation]++
	}

	recs := make([]string, 0, len(weight))
	for rec := range weight {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if weight[a] != weight[b] {
			return weight[a] > weight[b]
		}
		if count[a] != count[b] {
			return count[a] > count[b]
		}
		return a < b
	})
	return recs[0]
}

func rationale(recommendation string, supported, total, voters int, challenge domain.SkepticChallenge) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Recommend %q from %d specialist(s). Trust: %d of %d claims supported by verified evidence.",
		recommendation, voters, supported, total)

	switch {
	case challenge.MajorityView == "":
		sb.WriteString(" Skeptic: no majority view formed.")
	case challenge.Raised:
		fmt.Fprintf(&sb, " Skeptic: challenged majority view %q (strength %.2f): %s.",
			challenge.MajorityView, challenge.Strength, strings.Join(challenge.Weaknesses, "; "))
		if challenge.AlternativeHypothesis != "" {
			fmt.Fprintf(&sb, " Alternative hypothesis: %q.", challenge.AlternativeHypothesis)
		}
	default:
		fmt.Fprintf(&sb, " Skeptic: no credible challenge to majority view %q.", challenge.MajorityView)
	}
	return sb.String()
}
