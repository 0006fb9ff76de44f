package circuit_breaker

import (
	"errors"
	"sync"
	"time"
)

type Status uint8

const (
	Closed   Status = 1
	Open     Status = 2
	HalfOpen Status = 3
)

func (s Status) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrOpenCB = errors.New("circuit breaker is open")

type CircuitBreaker interface {
	Call(fn func() error) error
	State() Status
	Reset()
}

type Option func(cb *circuitBreaker)

// WithClock replaces time.Now, used by tests to step over the open timeout.
func WithClock(now func() time.Time) Option {
	return func(cb *circuitBreaker) {
		cb.now = now
	}
}

type circuitBreaker struct {
	mu  sync.Mutex
	now func() time.Time

	state Status
	// window of the most recent outcomes, true marks a failure
	window []bool
	pos    int
	// failure ratio over the window that opens the breaker
	threshold float64
	// how long the breaker stays open before letting a probe through
	cooldown time.Duration
	openedAt time.Time
	// consecutive half-open successes needed to close again
	recovery  int
	successes int
}

func New(window int, cooldown time.Duration, threshold float64, recovery int, opts ...Option) CircuitBreaker {
	if window < 1 {
		window = 1
	}
	cb := &circuitBreaker{
		now:       time.Now,
		state:     Closed,
		window:    make([]bool, window),
		threshold: threshold,
		cooldown:  cooldown,
		recovery:  recovery,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func (cb *circuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == Open {
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			cb.mu.Unlock()
			return ErrOpenCB
		}
		cb.state = HalfOpen
		cb.successes = 0
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.record(err != nil)

	if cb.state == HalfOpen {
		if err != nil {
			cb.trip()
			return err
		}
		cb.successes++
		if cb.successes >= cb.recovery {
			cb.reset()
		}
		return err
	}

	if cb.failureRatio() >= cb.threshold {
		cb.trip()
	}
	return err
}

func (cb *circuitBreaker) State() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *circuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.reset()
}

func (cb *circuitBreaker) record(failed bool) {
	cb.window[cb.pos] = failed
	cb.pos = (cb.pos + 1) % len(cb.window)
}

func (cb *circuitBreaker) failureRatio() float64 {
	fails := 0
	for _, failed := range cb.window {
		if failed {
			fails++
		}
	}
	return float64(fails) / float64(len(cb.window))
}

func (cb *circuitBreaker) trip() {
	cb.state = Open
	cb.successes = 0
	cb.openedAt = cb.now()
}

func (cb *circuitBreaker) reset() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.pos = 0
	cb.successes = 0
	cb.state = Closed
}
