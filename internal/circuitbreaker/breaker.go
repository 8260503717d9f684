package circuitbreaker

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests
	StateHalfOpen              // Testing with one request
)

type CircuitBreaker struct {
	mutex            sync.Mutex
	clock            clockwork.Clock
	state            State
	failures         int
	lastFailure      time.Time
	failureThreshold int
	resetTimeout     time.Duration
}

func NewCircuitBreaker(threshold int, timeout time.Duration, clock clockwork.Clock) *CircuitBreaker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &CircuitBreaker{
		clock:            clock,
		state:            StateClosed,
		failureThreshold: threshold,
		resetTimeout:     timeout,
	}
}

// Allow reports whether a request may be sent, moving an expired OPEN
// breaker to HALF-OPEN.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.expired() {
			cb.state = StateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// Available is Allow without the state change. Selection uses it to filter
// candidates before one is picked.
func (cb *CircuitBreaker) Available() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.state != StateOpen || cb.expired()
}

func (cb *CircuitBreaker) expired() bool {
	return cb.clock.Since(cb.lastFailure) >= cb.resetTimeout
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.lastFailure = cb.clock.Now()

	if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = StateOpen
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	cb.state = StateClosed
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
