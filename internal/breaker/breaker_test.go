package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  10 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func tripOpen(t *testing.T, b *Breaker) {
	t.Helper()
	for i := 0; i < b.Config().FailureThreshold; i++ {
		_ = b.Call(context.Background(), fail)
	}
	require.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpensAfterThresholdFailures(t *testing.T) {
	b := New("openai", testConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := b.Call(ctx, fail)
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, StateClosed, b.State())
	}

	err := b.Call(ctx, fail)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State())

	invoked := false
	err = b.Call(ctx, func(context.Context) error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked, "open breaker must not invoke the operation")

	stats := b.Stats()
	assert.Equal(t, int64(4), stats.TotalCalls)
	assert.Equal(t, int64(3), stats.TotalFailures)
	assert.Equal(t, int64(1), stats.TotalRejections)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("openai", testConfig())
	ctx := context.Background()

	_ = b.Call(ctx, fail)
	_ = b.Call(ctx, fail)
	require.NoError(t, b.Call(ctx, succeed))
	assert.Equal(t, 0, b.Stats().Failures)

	_ = b.Call(ctx, fail)
	_ = b.Call(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpenErrorCarriesRetryAfter(t *testing.T) {
	clock := newFakeClock()
	b := New("anthropic", testConfig(), WithClock(clock.Now))
	tripOpen(t, b)

	clock.Advance(4 * time.Second)
	err := b.Call(context.Background(), succeed)

	wait, ok := RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 6*time.Second, wait)
	assert.Equal(t, 6*time.Second, b.Stats().RetryAfter)

	var oe *OpenError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "anthropic", oe.Name)
	assert.Contains(t, oe.Error(), "retry after")
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	clock := newFakeClock()
	b := New("openai", testConfig(), WithClock(clock.Now))
	tripOpen(t, b)

	clock.Advance(10 * time.Second)
	assert.Equal(t, StateOpen, b.State(), "transition is lazy")
	assert.Equal(t, time.Duration(0), b.Stats().RetryAfter)

	var stateDuringCall State
	err := b.Call(context.Background(), func(context.Context) error {
		stateDuringCall = b.State()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, stateDuringCall)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.Equal(t, 1, b.Stats().Successes)
}

func TestBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	clock := newFakeClock()
	b := New("openai", testConfig(), WithClock(clock.Now))
	tripOpen(t, b)
	clock.Advance(11 * time.Second)

	require.NoError(t, b.Call(context.Background(), succeed))
	require.NoError(t, b.Call(context.Background(), succeed))

	stats := b.Stats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, 0, stats.Failures)
	assert.Equal(t, 0, stats.Successes)
	assert.Equal(t, 0, stats.HalfOpenCalls)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := New("openai", testConfig(), WithClock(clock.Now))
	tripOpen(t, b)
	clock.Advance(11 * time.Second)

	require.NoError(t, b.Call(context.Background(), succeed))
	require.Equal(t, StateHalfOpen, b.State())

	err := b.Call(context.Background(), fail)
	assert.ErrorIs(t, err, errBoom)

	stats := b.Stats()
	assert.Equal(t, StateOpen, stats.State)
	assert.Equal(t, 0, stats.HalfOpenCalls)
	assert.Equal(t, 0, stats.Successes)
	assert.Equal(t, 10*time.Second, stats.RetryAfter)

	assert.ErrorIs(t, b.Call(context.Background(), succeed), ErrOpen)
}

func TestBreaker_HalfOpenTrialBudget(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.SuccessThreshold = 3
	cfg.HalfOpenMaxCalls = 3
	b := New("gemini", cfg, WithClock(clock.Now))
	tripOpen(t, b)
	clock.Advance(11 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{}, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Call(context.Background(), func(context.Context) error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	for i := 0; i < 3; i++ {
		<-started
	}

	err := b.Call(context.Background(), succeed)
	assert.ErrorIs(t, err, ErrOpen)
	wait, _ := RetryAfter(err)
	assert.Equal(t, time.Duration(0), wait)
	assert.Equal(t, 3, b.Stats().HalfOpenCalls, "rejected call must not consume a trial slot")

	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_UnclassifiedErrorIsNeutral(t *testing.T) {
	cfg := testConfig()
	cfg.IsFailure = IgnoreCanceled
	b := New("openai", cfg)

	for i := 0; i < 5; i++ {
		err := b.Call(context.Background(), func(context.Context) error { return context.Canceled })
		assert.ErrorIs(t, err, context.Canceled)
	}

	stats := b.Stats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, 0, stats.Failures)
	assert.Equal(t, int64(5), stats.TotalCalls)
	assert.Equal(t, int64(0), stats.TotalFailures)
}

func TestBreaker_HalfOpenNeutralErrorReleasesSlot(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.IsFailure = IgnoreCanceled
	b := New("openai", cfg, WithClock(clock.Now))
	tripOpen(t, b)
	clock.Advance(11 * time.Second)

	canceled := func(context.Context) error { return context.Canceled }
	for i := 0; i < cfg.HalfOpenMaxCalls; i++ {
		assert.ErrorIs(t, b.Call(context.Background(), canceled), context.Canceled)
	}

	stats := b.Stats()
	assert.Equal(t, StateHalfOpen, stats.State)
	assert.Equal(t, 0, stats.HalfOpenCalls)

	require.NoError(t, b.Call(context.Background(), succeed))
	require.NoError(t, b.Call(context.Background(), succeed))
	assert.Equal(t, StateClosed, b.State())
}

// startCall admits a call that blocks until release is closed, then returns result.
func startCall(b *Breaker, result error, release <-chan struct{}) <-chan error {
	admitted := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Call(context.Background(), func(context.Context) error {
			close(admitted)
			<-release
			return result
		})
	}()
	select {
	case <-admitted:
	case err := <-done:
		done <- err
	}
	return done
}

func TestBreaker_StaleNeutralErrorKeepsTrialBudget(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.IsFailure = IgnoreCanceled
	b := New("openai", cfg, WithClock(clock.Now))

	releaseOld := make(chan struct{})
	old := startCall(b, context.Canceled, releaseOld)

	tripOpen(t, b)
	clock.Advance(11 * time.Second)

	releaseTrials := make(chan struct{})
	var trials []<-chan error
	for i := 0; i < cfg.HalfOpenMaxCalls; i++ {
		trials = append(trials, startCall(b, nil, releaseTrials))
	}
	require.Equal(t, cfg.HalfOpenMaxCalls, b.Stats().HalfOpenCalls)

	close(releaseOld)
	assert.ErrorIs(t, <-old, context.Canceled)
	assert.Equal(t, cfg.HalfOpenMaxCalls, b.Stats().HalfOpenCalls, "a call admitted while closed holds no trial slot")

	ran := false
	err := b.Call(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, ran)

	close(releaseTrials)
	for _, done := range trials {
		assert.NoError(t, <-done)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_StaleSuccessDoesNotCloseHalfOpen(t *testing.T) {
	clock := newFakeClock()
	b := New("anthropic", testConfig(), WithClock(clock.Now))

	releaseOld := make(chan struct{})
	oldA := startCall(b, nil, releaseOld)
	oldB := startCall(b, nil, releaseOld)

	tripOpen(t, b)
	clock.Advance(11 * time.Second)

	releaseTrial := make(chan struct{})
	trial := startCall(b, nil, releaseTrial)
	require.Equal(t, StateHalfOpen, b.State())

	close(releaseOld)
	require.NoError(t, <-oldA)
	require.NoError(t, <-oldB)

	stats := b.Stats()
	assert.Equal(t, StateHalfOpen, stats.State, "no trial call has completed yet")
	assert.Equal(t, 0, stats.Successes)
	assert.Equal(t, int64(2), stats.TotalSuccesses, "lifetime totals still count stale outcomes")

	close(releaseTrial)
	require.NoError(t, <-trial)
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Call(context.Background(), succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_PanicCountsAsFailure(t *testing.T) {
	clock := newFakeClock()
	b := New("gemini", testConfig(), WithClock(clock.Now))
	tripOpen(t, b)
	clock.Advance(11 * time.Second)

	assert.PanicsWithValue(t, "provider blew up", func() {
		_ = b.Call(context.Background(), func(context.Context) error { panic("provider blew up") })
	})

	stats := b.Stats()
	assert.Equal(t, StateOpen, stats.State)
	assert.Equal(t, 0, stats.HalfOpenCalls)
	assert.Equal(t, 10*time.Second, stats.RetryAfter)

	closed := New("gemini", testConfig())
	assert.Panics(t, func() {
		_ = closed.Call(context.Background(), func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, 1, closed.Stats().Failures)
}

func TestBreaker_TimeoutIsFailure(t *testing.T) {
	cfg := testConfig()
	cfg.IsFailure = IgnoreCanceled
	b := New("openai", cfg)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		err := b.Call(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		cancel()
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_StatsIsPure(t *testing.T) {
	clock := newFakeClock()
	b := New("openai", testConfig(), WithClock(clock.Now))
	tripOpen(t, b)
	clock.Advance(time.Minute)

	first := b.Stats()
	second := b.Stats()
	assert.Equal(t, first, second)
	assert.Equal(t, StateOpen, second.State)
}

func TestBreaker_ConcurrentFailuresCrossThresholdOnce(t *testing.T) {
	var transitions atomic.Int32
	cfg := testConfig()
	cfg.FailureThreshold = 10
	cfg.OnStateChange = func(_ string, from, to State) {
		if from == StateClosed && to == StateOpen {
			transitions.Add(1)
		}
	}
	b := New("openai", cfg)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Call(context.Background(), fail)
		}()
	}
	wg.Wait()

	stats := b.Stats()
	assert.Equal(t, StateOpen, stats.State)
	assert.Equal(t, int32(1), transitions.Load())
	assert.Equal(t, int64(50), stats.TotalCalls)
	assert.Equal(t, stats.TotalCalls, stats.TotalFailures+stats.TotalRejections)
}

func TestBreaker_Reset(t *testing.T) {
	b := New("openai", testConfig())
	tripOpen(t, b)

	b.Reset()
	stats := b.Stats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, 0, stats.Failures)
	assert.Equal(t, int64(3), stats.TotalFailures)
	require.NoError(t, b.Call(context.Background(), succeed))
}

func TestExecute(t *testing.T) {
	b := New("openai", testConfig())

	got, err := Execute(context.Background(), b, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	got, err = Execute(context.Background(), b, func(context.Context) (string, error) {
		return "partial", errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, got)
}

func TestConfig_Defaults(t *testing.T) {
	d := DefaultConfig()
	assert.Equal(t, 5, d.FailureThreshold)
	assert.Equal(t, 2, d.SuccessThreshold)
	assert.Equal(t, 60*time.Second, d.RecoveryTimeout)
	assert.Equal(t, 3, d.HalfOpenMaxCalls)
	assert.Equal(t, 3, StrictConfig().FailureThreshold)

	b := New("zero", Config{})
	c := b.Config()
	assert.Equal(t, 5, c.FailureThreshold)
	assert.True(t, c.IsFailure(errBoom))
	assert.False(t, c.IsFailure(nil))

	b = New("tight", Config{SuccessThreshold: 4, HalfOpenMaxCalls: 1})
	assert.Equal(t, 4, b.Config().HalfOpenMaxCalls)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
