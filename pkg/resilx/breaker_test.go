package resilx_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/encore/pkg/resilx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func serverError() error { return &resilx.StatusError{StatusCode: http.StatusServiceUnavailable} }

func tripBreaker(t *testing.T, b *resilx.Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		tk, err := b.Allow()
		require.NoError(t, err)
		b.Record(tk, serverError())
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := resilx.NewBreaker(resilx.BreakerConfig{Clock: clock})

	tripBreaker(t, b, resilx.DefaultFailureThreshold-1)
	require.Equal(t, resilx.StateClosed, b.State())

	tripBreaker(t, b, 1)
	require.Equal(t, resilx.StateOpen, b.State())
	_, err := b.Allow()
	require.ErrorIs(t, err, resilx.ErrCircuitOpen)
	require.Equal(t, resilx.DefaultCooldown, b.RetryIn())

	clock.Advance(10 * time.Second)
	_, err = b.Allow()
	retryIn, ok := resilx.CircuitRetryIn(err)
	require.True(t, ok)
	require.Equal(t, resilx.DefaultCooldown-10*time.Second, retryIn)
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	b := resilx.NewBreaker(resilx.BreakerConfig{Clock: clockwork.NewFakeClock()})

	for _, code := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusTooManyRequests} {
		for i := 0; i < 10; i++ {
			tk, err := b.Allow()
			require.NoError(t, err)
			b.Record(tk, &resilx.StatusError{StatusCode: code})
		}
	}
	require.Equal(t, resilx.StateClosed, b.State())
	require.Zero(t, b.Failures())
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := resilx.NewBreaker(resilx.BreakerConfig{Clock: clockwork.NewFakeClock()})

	tripBreaker(t, b, 4)
	tk, err := b.Allow()
	require.NoError(t, err)
	b.Record(tk, nil)
	require.Zero(t, b.Failures())

	tripBreaker(t, b, 4)
	require.Equal(t, resilx.StateClosed, b.State())
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	clock := clockwork.NewFakeClock()

	var transitions []string
	b := resilx.NewBreaker(resilx.BreakerConfig{
		Clock: clock,
		OnStateChange: func(from, to resilx.State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	tripBreaker(t, b, 5)

	clock.Advance(29 * time.Second)
	_, err := b.Allow()
	require.ErrorIs(t, err, resilx.ErrCircuitOpen)

	clock.Advance(time.Second)

	// Many callers race for the probe; exactly one gets it.
	var (
		admitted atomic.Int32
		probe    resilx.Ticket
		mu       sync.Mutex
		wg       sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tk, err := b.Allow(); err == nil {
				admitted.Add(1)
				mu.Lock()
				probe = tk
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), admitted.Load())
	require.Equal(t, resilx.StateHalfOpen, b.State())

	b.Record(probe, nil)
	require.Equal(t, resilx.StateClosed, b.State())
	require.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := resilx.NewBreaker(resilx.BreakerConfig{Clock: clock})
	tripBreaker(t, b, 5)

	clock.Advance(resilx.DefaultCooldown)
	tk, err := b.Allow()
	require.NoError(t, err)
	b.Record(tk, context.DeadlineExceeded)

	require.Equal(t, resilx.StateOpen, b.State())
	_, err = b.Allow()
	require.ErrorIs(t, err, resilx.ErrCircuitOpen)
	require.Equal(t, resilx.DefaultCooldown, b.RetryIn())
}

func TestBreakerCancelledProbeIsReleased(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := resilx.NewBreaker(resilx.BreakerConfig{Clock: clock})
	tripBreaker(t, b, 5)

	clock.Advance(resilx.DefaultCooldown)
	tk, err := b.Allow()
	require.NoError(t, err)
	b.Record(tk, context.Canceled)

	require.Equal(t, resilx.StateHalfOpen, b.State())
	_, err = b.Allow()
	require.NoError(t, err, "probe slot should be free again")
}

func TestBreakerLateSuccessDoesNotCloseOpenCircuit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := resilx.NewBreaker(resilx.BreakerConfig{Threshold: 2, Clock: clock})

	slow, err := b.Allow()
	require.NoError(t, err)

	tripBreaker(t, b, 2)
	require.Equal(t, resilx.StateOpen, b.State())

	// The slow call was admitted before the circuit opened.
	b.Record(slow, nil)
	require.Equal(t, resilx.StateOpen, b.State())
	_, err = b.Allow()
	require.ErrorIs(t, err, resilx.ErrCircuitOpen)
	require.Equal(t, 2, b.Failures())
}

func TestBreakerLateFailureIsIgnored(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := resilx.NewBreaker(resilx.BreakerConfig{Threshold: 2, Clock: clock})

	slow, err := b.Allow()
	require.NoError(t, err)
	tripBreaker(t, b, 2)

	clock.Advance(resilx.DefaultCooldown)
	probe, err := b.Allow()
	require.NoError(t, err)
	b.Record(probe, nil)
	require.Equal(t, resilx.StateClosed, b.State())

	b.Record(slow, serverError())
	require.Zero(t, b.Failures())
}

func TestBreakerStragglerCannotFreeProbeSlot(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := resilx.NewBreaker(resilx.BreakerConfig{Threshold: 2, Clock: clock})

	slow, err := b.Allow()
	require.NoError(t, err)
	tripBreaker(t, b, 2)

	clock.Advance(resilx.DefaultCooldown)
	probe, err := b.Allow()
	require.NoError(t, err)
	require.Equal(t, resilx.StateHalfOpen, b.State())

	// The straggler gives up while the probe is still in flight.
	b.Release(slow)
	_, err = b.Allow()
	require.ErrorIs(t, err, resilx.ErrCircuitOpen, "only the probe may free its slot")

	b.Record(probe, serverError())
	require.Equal(t, resilx.StateOpen, b.State())
}

func TestIsFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"500", &resilx.StatusError{StatusCode: 500}, true},
		{"503", &resilx.StatusError{StatusCode: 503}, true},
		{"404", &resilx.StatusError{StatusCode: 404}, false},
		{"429", &resilx.StatusError{StatusCode: 429}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"other", errors.New("decode failed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, resilx.IsFailure(tt.err))
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, 7*time.Second, resilx.ParseRetryAfter("7", now))
	require.Zero(t, resilx.ParseRetryAfter("", now))
	require.Zero(t, resilx.ParseRetryAfter("-3", now))
	require.Zero(t, resilx.ParseRetryAfter("soon", now))
	require.Equal(t, 90*time.Second, resilx.ParseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
}
