// Package breaker implements a per-provider circuit breaker.
//
// A Breaker moves between three phases:
//   - closed: calls pass through; consecutive failures are counted.
//   - open: calls are rejected with *OpenError until the recovery timeout
//     has elapsed since the last failure.
//   - half_open: a bounded number of trial calls probe recovery.
//
// The open → half_open move is evaluated lazily on the next call; there are
// no background timers.
package breaker

import (
	"context"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config is the immutable policy of a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive classified failures that opens a closed breaker.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes needed to close.
	SuccessThreshold int

	// RecoveryTimeout is how long an open breaker waits after the last failure before probing.
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls bounds the trial calls issued while half-open.
	HalfOpenMaxCalls int

	// IsFailure classifies an error returned by the wrapped operation.
	// Nil means every non-nil error is a failure.
	IsFailure func(error) bool

	// OnStateChange, when set, is invoked after every phase transition.
	// It runs with the breaker lock held and must not call back into the breaker.
	OnStateChange func(name string, from, to State)
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// StrictConfig is the policy for the stricter provider tier.
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	return cfg
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.RecoveryTimeout < 0 {
		c.RecoveryTimeout = 0
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	// a trial budget below the success threshold could never close the breaker
	if c.HalfOpenMaxCalls < c.SuccessThreshold {
		c.HalfOpenMaxCalls = c.SuccessThreshold
	}
	if c.IsFailure == nil {
		c.IsFailure = AnyError
	}
	return c
}

// Stats is a point-in-time snapshot of a Breaker.
type Stats struct {
	Name            string        `json:"name"`
	State           State         `json:"state"`
	Failures        int           `json:"failures"`
	Successes       int           `json:"successes"`
	HalfOpenCalls   int           `json:"half_open_calls"`
	TotalCalls      int64         `json:"total_calls"`
	TotalFailures   int64         `json:"total_failures"`
	TotalSuccesses  int64         `json:"total_successes"`
	TotalRejections int64         `json:"total_rejections"`
	LastFailureTime time.Time     `json:"last_failure_time,omitempty"`
	RetryAfter      time.Duration `json:"retry_after_ns"`
}

type Option func(*Breaker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// Breaker guards a single provider. Safe for concurrent use; the wrapped
// operation runs outside the lock.
type Breaker struct {
	name   string
	config Config
	now    func() time.Time

	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	halfOpenCalls   int
	lastFailureTime time.Time
	// generation changes on every transition; an outcome only touches the
	// per-phase counters of the generation that admitted its call.
	generation uint64

	totalCalls      int64
	totalFailures   int64
	totalSuccesses  int64
	totalRejections int64
}

func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:   name,
		config: cfg.withDefaults(),
		now:    time.Now,
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) Config() Config {
	return b.config
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call runs fn unless the breaker rejects it. A rejection returns *OpenError
// without invoking fn. Errors returned by fn are passed back unchanged.
// A panic in fn is recorded as a failure and then propagates.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	gen, err := b.beforeCall()
	if err != nil {
		return err
	}

	settled := false
	defer func() {
		if !settled {
			b.onFailure(gen)
		}
	}()

	err = fn(ctx)
	settled = true
	switch {
	case err == nil:
		b.onSuccess(gen)
	case b.config.IsFailure(err):
		b.onFailure(gen)
	default:
		b.onNeutral(gen)
	}
	return err
}

// Execute is Call for operations that produce a value.
func Execute[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Call(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// beforeCall counts the call and decides whether it may proceed. It returns
// the generation the call was admitted in.
func (b *Breaker) beforeCall() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	now := b.now()

	if b.state == StateOpen {
		if wait := b.retryAfterLocked(now); wait > 0 {
			b.totalRejections++
			return 0, &OpenError{Name: b.name, RetryAfter: wait}
		}
		b.transitionLocked(StateHalfOpen)
	}

	if b.state == StateHalfOpen {
		if b.halfOpenCalls >= b.config.HalfOpenMaxCalls {
			b.totalRejections++
			return 0, &OpenError{Name: b.name}
		}
		b.halfOpenCalls++
	}

	return b.generation, nil
}

func (b *Breaker) onSuccess(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccesses++
	if gen != b.generation {
		return
	}

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	}
}

func (b *Breaker) onFailure(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	if gen != b.generation {
		return
	}
	b.lastFailureTime = b.now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
	}
}

// onNeutral hands an unclassified half-open trial its slot back, so neutral
// errors cannot exhaust the budget and strand the gate half-open.
func (b *Breaker) onNeutral(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen == b.generation && b.state == StateHalfOpen && b.halfOpenCalls > 0 {
		b.halfOpenCalls--
	}
}

// transitionLocked changes phase and resets the per-phase counters.
// Must be called with the lock held.
func (b *Breaker) transitionLocked(to State) {
	from := b.state
	b.state = to
	b.generation++
	b.successes = 0
	b.halfOpenCalls = 0
	if to == StateClosed {
		b.failures = 0
	}
	if b.config.OnStateChange != nil && from != to {
		b.config.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) retryAfterLocked(now time.Time) time.Duration {
	if b.state != StateOpen {
		return 0
	}
	wait := b.config.RecoveryTimeout - now.Sub(b.lastFailureTime)
	if wait < 0 {
		return 0
	}
	return wait
}

// Stats returns a snapshot without changing any state.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Name:            b.name,
		State:           b.state,
		Failures:        b.failures,
		Successes:       b.successes,
		HalfOpenCalls:   b.halfOpenCalls,
		TotalCalls:      b.totalCalls,
		TotalFailures:   b.totalFailures,
		TotalSuccesses:  b.totalSuccesses,
		TotalRejections: b.totalRejections,
		LastFailureTime: b.lastFailureTime,
		RetryAfter:      b.retryAfterLocked(b.now()),
	}
}

// Reset forces the breaker back to closed. Lifetime totals are kept.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transitionLocked(StateClosed)
}
