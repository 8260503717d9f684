package strategy

import (
	"math/rand/v2"

	"github.com/ironmanme/poem-gateway/internal/backend"
)

type randomStrategy struct{}

func (r *randomStrategy) SelectBackend(backends []*backend.Backend, _ string) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	return backends[rand.IntN(len(backends))]
}

func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}
