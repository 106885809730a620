package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Harshitk-cp/factgate/internal/breaker"
	"github.com/Harshitk-cp/factgate/internal/domain"
	"github.com/Harshitk-cp/factgate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errProviderDown = errors.New("provider down")

func failingClient() *MockClient {
	c := NewMockClient()
	c.Err = errProviderDown
	return c
}

func succeedingClient(text string) *MockClient {
	c := NewMockClient()
	c.Response = text
	return c
}

func newTestSequencer(providers ...Provider) (*Sequencer, *breaker.Registry) {
	reg := breaker.NewRegistry(breaker.DefaultConfig())
	return NewSequencer(reg, providers, zap.NewNop()), reg
}

func TestSequencer_FailingPrimaryFallsBack(t *testing.T) {
	a := failingClient()
	b := succeedingClient("from b")
	seq, reg := newTestSequencer(
		Provider{Name: "a", Client: a, Config: breaker.DefaultConfig()},
		Provider{Name: "b", Client: b, Config: breaker.DefaultConfig()},
	)

	for i := 0; i < 20; i++ {
		res, err := seq.Generate(context.Background(), "prompt", domain.GenerateOptions{})
		require.NoError(t, err)
		assert.Equal(t, "from b", res.Text)
		assert.Equal(t, "b", res.Provider)
	}

	assert.Equal(t, 5, a.CallCount(), "open breaker must stop calls to a")
	assert.Equal(t, 20, b.CallCount())

	gate, ok := reg.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, breaker.StateOpen, gate.State())
}

func TestSequencer_SkipsOpenProviderWithoutCalling(t *testing.T) {
	a := succeedingClient("from a")
	b := succeedingClient("from b")
	seq, reg := newTestSequencer(
		Provider{Name: "a", Client: a, Config: breaker.DefaultConfig()},
		Provider{Name: "b", Client: b, Config: breaker.DefaultConfig()},
	)

	gate := reg.Get("a")
	for i := 0; i < 5; i++ {
		_ = gate.Call(context.Background(), func(context.Context) error { return errProviderDown })
	}
	require.Equal(t, breaker.StateOpen, gate.State())

	res, err := seq.Generate(context.Background(), "prompt", domain.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, 0, a.CallCount())
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, AttemptSkipped, res.Attempts[0].Outcome)
	assert.Equal(t, AttemptSuccess, res.Attempts[1].Outcome)
}

func TestSequencer_AllProvidersExhausted(t *testing.T) {
	lastErr := errors.New("b is down too")
	b := NewMockClient()
	b.Err = lastErr
	seq, _ := newTestSequencer(
		Provider{Name: "a", Client: failingClient(), Config: breaker.DefaultConfig()},
		Provider{Name: "b", Client: b, Config: breaker.DefaultConfig()},
	)

	res, err := seq.Generate(context.Background(), "prompt", domain.GenerateOptions{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrAllProvidersExhausted)
	assert.ErrorIs(t, err, lastErr)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, AttemptFailed, exhausted.Attempts[0].Outcome)
	assert.Equal(t, AttemptFailed, exhausted.Attempts[1].Outcome)
}

func TestSequencer_AllOpenReportsBreakerError(t *testing.T) {
	seq, reg := newTestSequencer(
		Provider{Name: "a", Client: succeedingClient("x"), Config: breaker.StrictConfig()},
	)
	gate := reg.Get("a")
	for i := 0; i < 3; i++ {
		_ = gate.Call(context.Background(), func(context.Context) error { return errProviderDown })
	}

	_, err := seq.Generate(context.Background(), "prompt", domain.GenerateOptions{})
	assert.ErrorIs(t, err, ErrAllProvidersExhausted)
	assert.ErrorIs(t, err, breaker.ErrOpen)
	wait, ok := breaker.RetryAfter(err)
	assert.True(t, ok)
	assert.Greater(t, wait, time.Duration(0))
}

func TestSequencer_PerCallTimeoutIsFailure(t *testing.T) {
	slow := NewMockClient()
	slow.GenerateFunc = func(ctx context.Context, _ string, _ domain.GenerateOptions) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	seq, reg := newTestSequencer(
		Provider{Name: "slow", Client: slow, Config: breaker.DefaultConfig()},
		Provider{Name: "fast", Client: succeedingClient("fast"), Config: breaker.DefaultConfig()},
	)

	res, err := seq.Generate(context.Background(), "prompt", domain.GenerateOptions{Timeout: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "fast", res.Provider)

	stats := reg.Get("slow").Stats()
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, int64(1), stats.TotalFailures)
}

func TestSequencer_CallerCancellationStopsWalk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := NewMockClient()
	first.GenerateFunc = func(context.Context, string, domain.GenerateOptions) (string, error) {
		cancel()
		return "", context.Canceled
	}
	second := succeedingClient("never")
	seq, _ := newTestSequencer(
		Provider{Name: "first", Client: first, Config: breaker.DefaultConfig()},
		Provider{Name: "second", Client: second, Config: breaker.DefaultConfig()},
	)

	_, err := seq.Generate(ctx, "prompt", domain.GenerateOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrAllProvidersExhausted)
	assert.Equal(t, 0, second.CallCount())
}

func TestSequencer_NoProviders(t *testing.T) {
	seq, _ := newTestSequencer()
	_, err := seq.Generate(context.Background(), "prompt", domain.GenerateOptions{})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestSequencer_RegistersGatesAndMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	reg := breaker.NewRegistry(breaker.DefaultConfig())
	seq := NewSequencer(reg, []Provider{
		{Name: "a", Client: failingClient(), Config: breaker.StrictConfig()},
		{Name: "b", Client: succeedingClient("ok"), Config: breaker.DefaultConfig()},
	}, zap.NewNop(), WithMetrics(m))

	assert.Equal(t, []string{"a", "b"}, seq.Providers())
	assert.Len(t, reg.Snapshot(), 2)

	for i := 0; i < 4; i++ {
		_, err := seq.Generate(context.Background(), "prompt", domain.GenerateOptions{})
		require.NoError(t, err)
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("a", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("a", "skipped")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("b", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("a", "closed", "open")))
}
