package circuitbreaker

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ironmanme/poem-gateway/internal/authority"
)

// Registry lazily creates one breaker per upstream node.
type Registry struct {
	mutex     sync.RWMutex
	clock     clockwork.Clock
	breakers  map[authority.Authority]*CircuitBreaker
	threshold int
	timeout   time.Duration
}

// NewRegistry creates a registry. A nil clock means the real clock.
func NewRegistry(threshold int, timeout time.Duration, clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Registry{
		clock:     clock,
		breakers:  make(map[authority.Authority]*CircuitBreaker),
		threshold: threshold,
		timeout:   timeout,
	}
}

func (r *Registry) GetBreaker(node authority.Authority) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[node]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Another goroutine may have created it
	if cb, exists = r.breakers[node]; exists {
		return cb
	}

	cb = NewCircuitBreaker(r.threshold, r.timeout, r.clock)
	r.breakers[node] = cb
	return cb
}

// Available reports whether node's breaker would let a request through.
// Nodes without a breaker are available.
func (r *Registry) Available(node authority.Authority) bool {
	r.mutex.RLock()
	cb, exists := r.breakers[node]
	r.mutex.RUnlock()

	return !exists || cb.Available()
}

func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[authority.Authority]*CircuitBreaker)
}

func (r *Registry) Stats() map[authority.Authority]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[authority.Authority]State, len(r.breakers))
	for node, cb := range r.breakers {
		stats[node] = cb.State()
	}
	return stats
}
