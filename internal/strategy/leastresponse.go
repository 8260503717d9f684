package strategy

import (
	"time"

	"github.com/ironmanme/poem-gateway/internal/backend"
)

type leastResponseStrategy struct{}

// SelectBackend scores each backend as EWMA * (active connections + 1). A
// backend without samples yet is picked first so it gets measured.
func (l *leastResponseStrategy) SelectBackend(backends []*backend.Backend, _ string) *backend.Backend {
	var (
		chosen *backend.Backend
		best   time.Duration
	)

	for _, b := range backends {
		ewma := b.EWMATime()
		if ewma == 0 {
			return b
		}

		score := ewma * (time.Duration(b.ActiveConnections()) + 1)
		if chosen == nil || score < best {
			chosen = b
			best = score
		}
	}

	return chosen
}

func NewLeastResponseStrategy() Strategy {
	return &leastResponseStrategy{}
}
