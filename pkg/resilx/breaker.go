package resilx

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 30 * time.Second
)

// State of a Breaker.
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

// BreakerConfig configures a Breaker. Zero values take the defaults.
type BreakerConfig struct {
	Threshold     int           // consecutive failures before opening
	Cooldown      time.Duration // time spent open before a probe is allowed
	Clock         clockwork.Clock
	OnStateChange func(from, to State)
}

// Breaker is a consecutive-failure circuit breaker. One instance guards one
// upstream dependency and is shared by every request in the process.
//
// Every state change starts a new generation. A result is only applied when
// it comes back in the generation its call was admitted in, so a slow call
// admitted while closed cannot close an open breaker, and only the probe
// itself can free the half-open slot.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	clock     clockwork.Clock
	onChange  func(from, to State)

	mu          sync.Mutex
	state       State
	generation  uint64
	failures    int
	lastFailure time.Time
	probing     bool
}

// Ticket is the permission Allow hands out. Pass it back with the result.
type Ticket struct {
	generation uint64
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &Breaker{
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		clock:     cfg.Clock,
		onChange:  cfg.OnStateChange,
	}
}

// Allow asks for permission to make one call. Every nil error must be
// followed by exactly one of Success, Failure or Release with the ticket.
func (b *Breaker) Allow() (Ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if left := b.cooldown - b.clock.Since(b.lastFailure); left > 0 {
			return Ticket{}, &OpenError{RetryIn: left}
		}
		b.transition(StateHalfOpen)
		b.probing = true

	case StateHalfOpen:
		// Only one probe at a time.
		if b.probing {
			return Ticket{}, &OpenError{}
		}
		b.probing = true
	}

	return Ticket{generation: b.generation}, nil
}

// Success closes the breaker and resets the failure counter.
func (b *Breaker) Success(t Ticket) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.generation != b.generation {
		return
	}
	b.failures = 0
	b.probing = false
	b.transition(StateClosed)
}

// Failure records a counted failure. A failed probe reopens immediately.
func (b *Breaker) Failure(t Ticket) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.generation != b.generation {
		return
	}
	b.failures++
	b.lastFailure = b.clock.Now()

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.transition(StateOpen)
	case StateClosed:
		if b.failures >= b.threshold {
			b.transition(StateOpen)
		}
	}
}

// Release gives back a permission that ended without a verdict, for example
// when the caller's context was cancelled before the request went out.
func (b *Breaker) Release(t Ticket) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.generation != b.generation || b.state != StateHalfOpen {
		return
	}
	b.probing = false
}

// Record routes err to Success, Failure or Release.
func (b *Breaker) Record(t Ticket, err error) {
	switch {
	case err == nil:
		b.Success(t)
	case IsFailure(err):
		b.Failure(t)
	case isStatus(err):
		// Any HTTP answer, even a 4xx, proves the upstream is up.
		b.Success(t)
	default:
		b.Release(t)
	}
}

// State returns the current state without advancing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures is the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// RetryIn is how long until an open breaker admits a probe.
func (b *Breaker) RetryIn() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return 0
	}
	if d := b.cooldown - b.clock.Since(b.lastFailure); d > 0 {
		return d
	}
	return 0
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.generation++
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
