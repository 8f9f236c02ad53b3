package resilx

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 250 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultDeadline    = 15 * time.Second

	// DefaultRetryAfter is used when a 429 carries no usable hint.
	DefaultRetryAfter = time.Second
)

// RetryConfig bounds the retry loop. Zero values take the defaults.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Deadline caps the whole call including sleeps. It should sit below the
	// inbound HTTP timeout so the caller still gets a clean error.
	Deadline time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
	return c
}

// Backoff is base * 2^attempt, capped at limit. attempt counts from zero.
func Backoff(base, limit time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return min(d, limit)
}

// Jitter returns a random duration in [base/2, 3*base/2).
func Jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(float64(base) * (0.5 + rand.Float64()))
}

// RetryEvent describes a scheduled retry.
type RetryEvent struct {
	Attempt int // attempt that just failed, from 1
	Delay   time.Duration
	Err     error
}

// Policy strings the breaker, the gate and the retry loop together.
// A nil Breaker or Gate skips that stage.
type Policy struct {
	Breaker *Breaker
	Gate    *Gate
	Retry   RetryConfig
	Clock   clockwork.Clock
	OnRetry func(RetryEvent)
}

// Do runs fn until it succeeds, returns a non-transient error, exhausts the
// attempt budget or would overrun the deadline. Each attempt first asks the
// breaker, then waits on the gate.
func (p *Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	cfg := p.Retry.withDefaults()
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	deadline := clock.Now().Add(cfg.Deadline)
	ctx, cancel := context.WithTimeout(ctx, cfg.Deadline)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		var ticket Ticket
		if p.Breaker != nil {
			t, err := p.Breaker.Allow()
			if err != nil {
				if lastErr != nil {
					return fmt.Errorf("%w: %w", err, lastErr)
				}
				return err
			}
			ticket = t
		}

		if p.Gate != nil {
			if err := p.Gate.Wait(ctx); err != nil {
				if p.Breaker != nil {
					p.Breaker.Release(ticket)
				}
				return p.giveUp(err, lastErr)
			}
		}

		err := fn(ctx)
		if p.Breaker != nil {
			p.Breaker.Record(ticket, err)
		}
		if err == nil {
			return nil
		}
		lastErr = err

		// Every 429 holds back the whole process, including the one that
		// ends the budget.
		ra, rateLimited := RetryAfter(err)
		if rateLimited {
			if ra <= 0 {
				ra = DefaultRetryAfter
			}
			if p.Gate != nil {
				p.Gate.Defer(ra)
			}
		}

		if !IsTransient(err) || attempt == cfg.MaxAttempts-1 {
			break
		}

		var delay time.Duration
		if rateLimited {
			delay = ra + Jitter(cfg.BaseDelay)
		} else {
			delay = Backoff(cfg.BaseDelay, cfg.MaxDelay, attempt) + Jitter(cfg.BaseDelay)
		}

		if clock.Now().Add(delay).After(deadline) {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(RetryEvent{Attempt: attempt + 1, Delay: delay, Err: err})
		}

		if err := sleep(ctx, clock, delay); err != nil {
			return p.giveUp(err, lastErr)
		}
	}

	if _, ok := RetryAfter(lastErr); ok {
		return fmt.Errorf("%w: %w", ErrRateLimited, lastErr)
	}
	return lastErr
}

func (p *Policy) giveUp(ctxErr, lastErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", lastErr, ctxErr)
}
