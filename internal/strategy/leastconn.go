package strategy

import (
	"math"

	"github.com/ironmanme/poem-gateway/internal/backend"
)

type leastConnStrategy struct{}

func (l *leastConnStrategy) SelectBackend(backends []*backend.Backend, _ string) *backend.Backend {
	var best *backend.Backend
	bestConns := math.MaxInt

	for _, b := range backends {
		if conns := b.ActiveConnections(); conns < bestConns {
			bestConns = conns
			best = b
		}
	}

	return best
}

func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}
