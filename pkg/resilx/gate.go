package resilx

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Gate holds every outgoing call until a shared not-before instant. A 429 on
// any request pushes the instant forward for all of them, so the process
// backs off as a whole instead of each request rediscovering the limit.
// An optional token bucket paces calls in steady state.
type Gate struct {
	clock   clockwork.Clock
	limiter *rate.Limiter

	mu        sync.Mutex
	notBefore time.Time
}

// NewGate creates a gate. rps <= 0 disables steady-state pacing.
func NewGate(clock clockwork.Clock, rps float64, burst int) *Gate {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	g := &Gate{clock: clock}
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return g
}

// Defer moves the not-before instant to now+d. It never moves it earlier.
func (g *Gate) Defer(d time.Duration) {
	if d <= 0 {
		return
	}
	until := g.clock.Now().Add(d)

	g.mu.Lock()
	defer g.mu.Unlock()
	if until.After(g.notBefore) {
		g.notBefore = until
	}
}

// NotBefore returns the current gate instant, zero if never deferred.
func (g *Gate) NotBefore() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.notBefore
}

// Wait blocks until the gate is open and a pacing token is available.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		wait := g.notBefore.Sub(g.clock.Now())
		g.mu.Unlock()

		if wait <= 0 {
			break
		}
		// The instant can move while we sleep, so re-check after waking.
		if err := sleep(ctx, g.clock, wait); err != nil {
			return err
		}
	}

	if g.limiter != nil {
		return g.limiter.Wait(ctx)
	}
	return nil
}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}
