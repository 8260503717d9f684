package strategy

import (
	"sync/atomic"

	"github.com/ironmanme/poem-gateway/internal/backend"
)

type roundRobinStrategy struct {
	current atomic.Uint64
}

func (rb *roundRobinStrategy) SelectBackend(backends []*backend.Backend, _ string) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	n := rb.current.Add(1)
	index := (n - 1) % uint64(len(backends))

	return backends[index]
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}
