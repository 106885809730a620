package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/factgate/internal/domain"
	"github.com/Harshitk-cp/factgate/internal/llm"
	"github.com/Harshitk-cp/factgate/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidRole     = errors.New("invalid specialist role")
	ErrDuplicateRole   = errors.New("duplicate specialist role")
	ErrInvalidResponse = errors.New("invalid specialist response")
)

const defaultDebateConcurrency = 5

// Generator is the provider-call surface the debate runner needs.
// *llm.Sequencer satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (*llm.Result, error)
}

type DebateRequest struct {
	Question string
	Roles    []domain.Role
	Evidence []domain.VerifiedFact
}

// DebateService runs one specialist panel round through the provider
// failover and the safety protocol.
type DebateService struct {
	generator Generator
	safety    *SafetyProtocol
	audit     *AuditLogger
	metrics   *metrics.Metrics
	logger    *zap.Logger

	maxConcurrency int
	options        domain.GenerateOptions
}

func NewDebateService(gen Generator, safety *SafetyProtocol, audit *AuditLogger, m *metrics.Metrics, logger *zap.Logger) *DebateService {
	return &DebateService{
		generator:      gen,
		safety:         safety,
		audit:          audit,
		metrics:        m,
		logger:         logger,
		maxConcurrency: defaultDebateConcurrency,
	}
}

// SetMaxConcurrency bounds how many specialists call providers at once.
func (s *DebateService) SetMaxConcurrency(n int) {
	if n > 0 {
		s.maxConcurrency = n
	}
}

// SetGenerateOptions sets the options passed with every specialist prompt.
func (s *DebateService) SetGenerateOptions(opts domain.GenerateOptions) {
	s.options = opts
}

// Run asks every role for an opinion concurrently and synthesizes the result.
// A specialist whose providers are all exhausted, or whose output cannot be
// parsed, is excluded. If the caller cancels, nothing is synthesized or
// recorded and the context error is returned.
func (s *DebateService) Run(ctx context.Context, req DebateRequest) (*domain.LeaderSynthesis, error) {
	roles := req.Roles
	if len(roles) == 0 {
		roles = domain.AllRoles
	}
	if err := validateRoles(roles); err != nil {
		return nil, err
	}

	responses := make([]*domain.SpecialistResponse, len(roles))
	failures := make([]*domain.SpecialistFailure, len(roles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	for i, role := range roles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resp, err := s.askSpecialist(gctx, role, req.Question, req.Evidence)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn("specialist excluded",
					zap.String("role", string(role)),
					zap.Error(err))
				failures[i] = &domain.SpecialistFailure{Role: role, Error: err.Error()}
				return nil
			}
			responses[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.metrics.DebateOutcome("canceled", 0)
		return nil, fmt.Errorf("debate: %w", err)
	}
	if err := ctx.Err(); err != nil {
		s.metrics.DebateOutcome("canceled", 0)
		return nil, fmt.Errorf("debate: %w", err)
	}

	var ok []domain.SpecialistResponse
	var failed []domain.SpecialistFailure
	for i := range roles {
		switch {
		case responses[i] != nil:
			ok = append(ok, *responses[i])
		case failures[i] != nil:
			failed = append(failed, *failures[i])
		}
	}

	return s.synthesize(req.Question, ok, failed, req.Evidence)
}

func (s *DebateService) askSpecialist(ctx context.Context, role domain.Role, question string, evidence []domain.VerifiedFact) (*domain.SpecialistResponse, error) {
	prompt := llm.BuildSpecialistPrompt(role, question, evidence)

	start := time.Now()
	result, err := s.generator.Generate(ctx, prompt, s.options)
	if err != nil {
		return nil, fmt.Errorf("%s specialist: %w", role, err)
	}

	resp, err := llm.ParseSpecialistResponse(role, result.Provider, result.Text)
	if err != nil {
		return nil, fmt.Errorf("%s specialist via %s: %w", role, result.Provider, err)
	}

	s.logger.Debug("specialist responded",
		zap.String("role", string(role)),
		zap.String("provider", result.Provider),
		zap.String("recommendation", resp.Recommendation),
		zap.Float64("confidence", resp.Confidence),
		zap.Duration("duration", time.Since(start)))
	return resp, nil
}

// Synthesize runs the safety protocol over caller-supplied opinions.
func (s *DebateService) Synthesize(ctx context.Context, responses []domain.SpecialistResponse, failures []domain.SpecialistFailure, evidence []domain.VerifiedFact) (*domain.LeaderSynthesis, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	roles := make([]domain.Role, 0, len(responses))
	for _, r := range responses {
		if r.Confidence < 0 || r.Confidence > 1 {
			return nil, fmt.Errorf("%w: %s confidence %v outside [0,1]", ErrInvalidResponse, r.Role, r.Confidence)
		}
		if r.Recommendation == "" {
			return nil, fmt.Errorf("%w: %s has no recommendation", ErrInvalidResponse, r.Role)
		}
		roles = append(roles, r.Role)
	}
	if err := validateRoles(roles); err != nil {
		return nil, err
	}

	return s.synthesize("", responses, failures, evidence)
}

func (s *DebateService) synthesize(question string, responses []domain.SpecialistResponse, failures []domain.SpecialistFailure, evidence []domain.VerifiedFact) (*domain.LeaderSynthesis, error) {
	synthesis, err := s.safety.Run(responses, failures, evidence)
	if err != nil {
		s.metrics.DebateOutcome("unresolvable", 0)
		return nil, err
	}
	s.metrics.DebateOutcome("synthesized", synthesis.Confidence)

	verdict := "unchallenged"
	if synthesis.Challenge.Raised {
		verdict = "challenged"
	}
	s.audit.Emit(&domain.AuditEvent{
		Kind:       domain.AuditKindDebateSynthesis,
		SubjectID:  synthesis.Recommendation,
		Verdict:    verdict,
		Penalty:    synthesis.BaseConfidence - synthesis.Confidence,
		Confidence: synthesis.Confidence,
		Reasoning:  synthesis.Rationale,
		Payload: map[string]any{
			"question":             question,
			"participants":         synthesis.Participants,
			"excluded":             len(synthesis.Excluded),
			"unsupported_fraction": synthesis.UnsupportedFraction,
			"challenge_strength":   synthesis.Challenge.Strength,
		},
	})
	return synthesis, nil
}

func validateRoles(roles []domain.Role) error {
	seen := make(map[domain.Role]bool, len(roles))
	for _, r := range roles {
		if !domain.ValidRole(string(r)) {
			return fmt.Errorf("%w: %q", ErrInvalidRole, r)
		}
		if seen[r] {
			return fmt.Errorf("%w: %q", ErrDuplicateRole, r)
		}
		seen[r] = true
	}
	return nil
}
