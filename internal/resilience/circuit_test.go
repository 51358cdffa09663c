package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-galeri/internal/resilience"
)

func TestBreakerTransitions(t *testing.T) {
	breaker := resilience.NewBreaker(2, 0.5, 50*time.Millisecond)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "breaker should open after threshold exceeded")
	require.Equal(t, resilience.Open, breaker.State())

	time.Sleep(60 * time.Millisecond)
	require.True(t, breaker.Allow(ctx), "breaker should admit a trial request after cool off")
	require.False(t, breaker.Allow(ctx), "only one trial request while half-open")
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
	require.True(t, breaker.Allow(ctx))
}

func TestBreakerDo(t *testing.T) {
	breaker := resilience.NewBreaker(1, 0.5, time.Hour).WithTarget("do-test")
	ctx := context.Background()
	boom := errors.New("boom")

	require.ErrorIs(t, breaker.Do(ctx, func(context.Context) error { return boom }), boom)

	called := false
	err := breaker.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.False(t, called)

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues("do-test")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("do-test", "closed", "open")))

	var unset *resilience.Breaker
	require.NoError(t, unset.Do(ctx, func(context.Context) error { return nil }))
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, time.Minute, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, time.Minute, 3, 0))
	require.Equal(t, time.Second, resilience.Backoff(base, time.Second, 10, 0))
	require.Equal(t, time.Second, resilience.Backoff(base, time.Second, 500, 0))

	d := resilience.Backoff(base, time.Minute, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-(base*2/5))
	require.LessOrEqual(t, d, base*2+(base*2/5))
}
