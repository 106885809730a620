package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/factgate/internal/breaker"
	"github.com/Harshitk-cp/factgate/internal/domain"
	"github.com/Harshitk-cp/factgate/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrNoProviders           = errors.New("no LLM providers configured")
	ErrAllProvidersExhausted = errors.New("all LLM providers exhausted")
)

// Provider is one entry of the failover list. Config is the breaker policy
// used the first time the provider's gate is created.
type Provider struct {
	Name   string
	Client domain.LLMClient
	Config breaker.Config
}

type AttemptOutcome string

const (
	AttemptSuccess AttemptOutcome = "success"
	AttemptFailed  AttemptOutcome = "failed"
	AttemptSkipped AttemptOutcome = "skipped"
)

type Attempt struct {
	Provider string         `json:"provider"`
	Outcome  AttemptOutcome `json:"outcome"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
}

type Result struct {
	Text     string    `json:"text"`
	Provider string    `json:"provider"`
	Attempts []Attempt `json:"attempts"`
}

// ExhaustedError is returned when no provider produced a result. It matches
// ErrAllProvidersExhausted and unwraps to the last underlying error.
type ExhaustedError struct {
	Attempts []Attempt
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d LLM providers exhausted: last error: %v", len(e.Attempts), e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

type SequencerOption func(*Sequencer)

func WithMetrics(m *metrics.Metrics) SequencerOption {
	return func(s *Sequencer) {
		s.metrics = m
	}
}

// Sequencer tries providers in strict priority order, each behind its own
// circuit breaker, and returns the first success. It never calls two
// providers at once.
type Sequencer struct {
	registry  *breaker.Registry
	providers []Provider
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewSequencer(registry *breaker.Registry, providers []Provider, logger *zap.Logger, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		registry:  registry,
		providers: providers,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Create every gate up front so stats list providers that were never called.
	for i := range s.providers {
		cfg := s.providers[i].Config
		if cfg.OnStateChange == nil {
			cfg.OnStateChange = s.observeTransition
		}
		s.providers[i].Config = cfg
		registry.GetWithConfig(s.providers[i].Name, cfg)
	}
	return s
}

func (s *Sequencer) observeTransition(name string, from, to breaker.State) {
	s.logger.Warn("circuit breaker state change",
		zap.String("provider", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	s.metrics.ObserveBreaker(name, from, to)
}

// Providers returns the provider names in priority order.
func (s *Sequencer) Providers() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name
	}
	return names
}

// Generate returns the first successful provider result. Providers whose
// breaker is open are skipped without waiting. opts.Timeout, when set, bounds
// each individual provider call.
func (s *Sequencer) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (*Result, error) {
	if len(s.providers) == 0 {
		return nil, ErrNoProviders
	}

	attempts := make([]Attempt, 0, len(s.providers))
	var lastErr error

	for _, p := range s.providers {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}

		gate := s.registry.GetWithConfig(p.Name, p.Config)
		client := p.Client
		start := time.Now()

		text, err := breaker.Execute(ctx, gate, func(ctx context.Context) (string, error) {
			callCtx, cancel := withTimeout(ctx, opts.Timeout)
			defer cancel()
			return client.Generate(callCtx, prompt, opts)
		})
		elapsed := time.Since(start)

		if err == nil {
			attempts = append(attempts, Attempt{Provider: p.Name, Outcome: AttemptSuccess, Duration: elapsed})
			s.metrics.ProviderAttempt(p.Name, string(AttemptSuccess), elapsed.Seconds())
			return &Result{Text: text, Provider: p.Name, Attempts: attempts}, nil
		}

		lastErr = err
		if errors.Is(err, breaker.ErrOpen) {
			attempts = append(attempts, Attempt{Provider: p.Name, Outcome: AttemptSkipped, Error: err.Error()})
			s.metrics.ProviderAttempt(p.Name, string(AttemptSkipped), 0)
			s.logger.Debug("provider skipped, breaker open", zap.String("provider", p.Name))
			continue
		}

		// The caller gave up; later providers are not failing.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("generate: %w", ctx.Err())
		}

		attempts = append(attempts, Attempt{Provider: p.Name, Outcome: AttemptFailed, Error: err.Error(), Duration: elapsed})
		s.metrics.ProviderAttempt(p.Name, string(AttemptFailed), elapsed.Seconds())
		s.logger.Warn("provider call failed, trying next",
			zap.String("provider", p.Name),
			zap.Duration("duration", elapsed),
			zap.Error(err))
	}

	return nil, &ExhaustedError{Attempts: attempts, Last: lastErr}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
