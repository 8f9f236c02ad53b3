// Package resilx wraps calls to a flaky upstream in a circuit breaker, a
// shared not-before gate fed by Retry-After hints, and a bounded retry loop.
package resilx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrCircuitOpen is returned without touching the network while the
	// breaker is open or a half-open probe is already in flight.
	ErrCircuitOpen = errors.New("resilx: circuit open")

	// ErrRateLimited wraps the final 429 once the retry budget is spent.
	ErrRateLimited = errors.New("resilx: rate limited")
)

// OpenError is what an open breaker returns. It matches ErrCircuitOpen and
// carries how long until a probe will be admitted.
type OpenError struct {
	RetryIn time.Duration
}

func (e *OpenError) Error() string { return ErrCircuitOpen.Error() }

func (e *OpenError) Is(target error) bool { return target == ErrCircuitOpen }

// CircuitRetryIn reports the cool-down left on the breaker that rejected err.
func CircuitRetryIn(err error) (time.Duration, bool) {
	var oe *OpenError
	if errors.As(err, &oe) {
		return oe.RetryIn, true
	}
	return 0, false
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration // parsed from Retry-After, zero if absent
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
}

// NewStatusError builds a StatusError from a response, reading Retry-After.
func NewStatusError(resp *http.Response, message string) *StatusError {
	return &StatusError{
		StatusCode: resp.StatusCode,
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		Message:    message,
	}
}

// ParseRetryAfter accepts both delta-seconds and HTTP-date forms.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// IsFailure reports whether err should count against the breaker. Server
// errors, timeouts and transport errors count. 4xx responses (including 429)
// mean the upstream is alive and never count. A caller that gave up is not
// the upstream's fault either.
func IsFailure(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}

	return false
}

// IsTransient reports whether a retry has a reasonable chance of succeeding.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return IsFailure(err)
}

func isStatus(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// RetryAfter extracts a Retry-After hint from a 429 error chain.
func RetryAfter(err error) (time.Duration, bool) {
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		return se.RetryAfter, true
	}
	return 0, false
}
