package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Harshitk-cp/factgate/internal/domain"
	"github.com/Harshitk-cp/factgate/internal/metrics"
	"go.uber.org/zap"
)

const (
	EmptyOutputPenalty         = 0.3
	OverfittingPenalty         = 0.1
	UnknownSignificancePenalty = 0.15
	SmallSamplePenalty         = 0.2
	FastExecutionPenalty       = 0.05

	OverfittingCorrelation = 0.95
	MinSampleSize          = 30
	MinExecutionTimeMs     = 10
)

const (
	ConcernEmptyOutput         = "empty output: verification code extracted no values"
	ConcernOverfitting         = "possible overfitting: |correlation| above 0.95"
	ConcernUnknownSignificance = "significance unknown: correlation reported without p_value"
	ConcernSmallSample         = "small sample: sample_size below 30"
	ConcernFastExecution       = "suspiciously fast execution: result may be hardcoded"
)

type advice int

const (
	adviceNone advice = iota
	adviceSampleSize
	adviceSignificance
	adviceCrossValidation
)

var adviceText = map[advice]string{
	adviceSampleSize:      "Increase the sample size to at least 30 observations",
	adviceSignificance:    "Report a p_value alongside the correlation to establish significance",
	adviceCrossValidation: "Cross-validate on held-out data to rule out overfitting",
}

// finding is one fired rule.
type finding struct {
	concern   string
	penalty   float64
	challenge bool
	advice    advice
}

// doubterRule inspects a successful fact. Rules are independent of each other.
type doubterRule func(f *domain.VerifiedFact) []finding

// doubterRules are folded in order; the order fixes the order of concerns.
var doubterRules = []doubterRule{
	ruleEmptyOutput,
	ruleCorrelation,
	ruleSampleSize,
	ruleExecutionTime,
}

func ruleEmptyOutput(f *domain.VerifiedFact) []finding {
	if len(f.ExtractedValues) > 0 {
		return nil
	}
	return []finding{{concern: ConcernEmptyOutput, penalty: EmptyOutputPenalty, challenge: true}}
}

func ruleCorrelation(f *domain.VerifiedFact) []finding {
	r, ok := f.Numeric("correlation")
	if !ok || math.Abs(r) <= OverfittingCorrelation {
		return nil
	}
	out := []finding{{concern: ConcernOverfitting, penalty: OverfittingPenalty, challenge: true, advice: adviceCrossValidation}}
	if !f.Has("p_value") {
		out = append(out, finding{concern: ConcernUnknownSignificance, penalty: UnknownSignificancePenalty, challenge: true, advice: adviceSignificance})
	}
	return out
}

func ruleSampleSize(f *domain.VerifiedFact) []finding {
	n, ok := f.Numeric("sample_size")
	if !ok || n >= MinSampleSize {
		return nil
	}
	return []finding{{concern: ConcernSmallSample, penalty: SmallSamplePenalty, challenge: true, advice: adviceSampleSize}}
}

// ruleExecutionTime adds penalty but never forces a challenge on its own.
func ruleExecutionTime(f *domain.VerifiedFact) []finding {
	if f.ExecutionTimeMs >= MinExecutionTimeMs {
		return nil
	}
	return []finding{{concern: ConcernFastExecution, penalty: FastExecutionPenalty}}
}

// DoubterService adversarially reviews computed facts.
type DoubterService struct {
	enabled bool
	audit   *AuditLogger
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewDoubterService(enabled bool, audit *AuditLogger, m *metrics.Metrics, logger *zap.Logger) *DoubterService {
	return &DoubterService{
		enabled: enabled,
		audit:   audit,
		metrics: m,
		logger:  logger,
	}
}

func (s *DoubterService) Enabled() bool {
	return s.enabled
}

// Review judges one fact. It never mutates the fact and never fails; the
// outcome is always expressed as a report.
func (s *DoubterService) Review(ctx context.Context, fact *domain.VerifiedFact) *domain.DoubterReport {
	report := s.evaluate(fact)

	s.metrics.Verdict(string(report.Verdict))
	s.logger.Debug("fact reviewed",
		zap.String("fact_id", fact.ID.String()),
		zap.String("verdict", string(report.Verdict)),
		zap.Float64("penalty", report.ConfidencePenalty),
		zap.Int("concerns", len(report.Concerns)))

	s.audit.Emit(&domain.AuditEvent{
		Kind:       domain.AuditKindFactReview,
		SubjectID:  fact.ID.String(),
		Verdict:    string(report.Verdict),
		Penalty:    report.ConfidencePenalty,
		Confidence: AdjustConfidence(1, report),
		Reasoning:  report.Reasoning,
		Payload: map[string]any{
			"query_id": fact.QueryID.String(),
			"plan_id":  fact.PlanID.String(),
			"concerns": report.Concerns,
		},
	})

	return report
}

func (s *DoubterService) evaluate(fact *domain.VerifiedFact) *domain.DoubterReport {
	report := &domain.DoubterReport{
		FactID:     fact.ID,
		Verdict:    domain.VerdictAccept,
		Concerns:   []string{},
		ReviewedAt: time.Now(),
	}

	if !s.enabled {
		report.Reasoning = "disabled"
		return report
	}

	if !fact.Succeeded() {
		concern := "execution failed"
		if fact.ErrorMessage != "" {
			concern = fmt.Sprintf("execution failed: %s", fact.ErrorMessage)
		}
		report.Verdict = domain.VerdictReject
		report.Concerns = append(report.Concerns, concern)
		report.ConfidencePenalty = 1.0
		report.Reasoning = reasoningFor(report.Verdict, report.Concerns)
		return report
	}

	// Penalties accumulate uncapped and are clamped once at the end.
	var penalty float64
	fired := make(map[advice]bool)
	for _, rule := range doubterRules {
		for _, fd := range rule(fact) {
			report.Concerns = append(report.Concerns, fd.concern)
			penalty += fd.penalty
			if fd.challenge {
				report.Verdict = report.Verdict.Escalate(domain.VerdictChallenge)
			}
			if fd.advice != adviceNone {
				fired[fd.advice] = true
			}
		}
	}

	report.ConfidencePenalty = clamp01(penalty)
	report.Reasoning = reasoningFor(report.Verdict, report.Concerns)
	for _, a := range []advice{adviceSampleSize, adviceSignificance, adviceCrossValidation} {
		if fired[a] {
			report.SuggestedImprovements = append(report.SuggestedImprovements, adviceText[a])
		}
	}
	return report
}

func reasoningFor(v domain.Verdict, concerns []string) string {
	switch v {
	case domain.VerdictReject:
		return "Rejected: the computation did not succeed, so its values cannot be trusted"
	case domain.VerdictChallenge:
		return fmt.Sprintf("Challenged: %d concern(s) weaken this result and its confidence is reduced", len(concerns))
	default:
		if len(concerns) > 0 {
			return fmt.Sprintf("Accepted with %d minor concern(s)", len(concerns))
		}
		return "Accepted: no statistical or logical red flags found"
	}
}

// AdjustConfidence applies a review to an initial confidence. A reject always
// yields 0; otherwise the result is initial*(1-penalty) clamped to [0,1].
func AdjustConfidence(initial float64, report *domain.DoubterReport) float64 {
	if report == nil {
		return clamp01(initial)
	}
	if report.Verdict == domain.VerdictReject {
		return 0
	}
	return clamp01(initial * (1 - report.ConfidencePenalty))
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
