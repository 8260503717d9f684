package strategy

import (
	"sync"

	"github.com/ironmanme/poem-gateway/internal/authority"
	"github.com/ironmanme/poem-gateway/internal/backend"
)

// weightedRoundRobinStrategy implements smooth weighted round-robin load balancing.
// Uses the Nginx algorithm: each backend accumulates its weight per selection cycle,
// the highest current value is chosen, then reduced by the sum of all weights.
type weightedRoundRobinStrategy struct {
	mutex   sync.Mutex
	current map[authority.Authority]int
}

// NewWeightedRoundRobinStrategy creates a weighted round-robin strategy instance.
func NewWeightedRoundRobinStrategy() Strategy {
	return &weightedRoundRobinStrategy{
		current: make(map[authority.Authority]int),
	}
}

func (w *weightedRoundRobinStrategy) SelectBackend(backends []*backend.Backend, _ string) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	// The healthy set changes between sweeps; forget nodes that dropped out
	// so they rejoin with a clean slate.
	w.cleanup(backends)

	totalWeight := 0
	var chosen *backend.Backend

	for _, b := range backends {
		weight := b.Weight()
		w.current[b.Authority()] += weight
		totalWeight += weight

		if chosen == nil || w.current[b.Authority()] > w.current[chosen.Authority()] {
			chosen = b
		}
	}

	w.current[chosen.Authority()] -= totalWeight
	return chosen
}

func (w *weightedRoundRobinStrategy) cleanup(backends []*backend.Backend) {
	alive := make(map[authority.Authority]struct{}, len(backends))
	for _, b := range backends {
		alive[b.Authority()] = struct{}{}
	}

	for a := range w.current {
		if _, ok := alive[a]; !ok {
			delete(w.current, a)
		}
	}
}
