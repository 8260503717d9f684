package strategy

import (
	"github.com/ironmanme/poem-gateway/internal/backend"
)

// Strategy picks one backend from the currently healthy candidates. key is
// the request's affinity key (the client IP); strategies that do not hash
// ignore it. SelectBackend returns nil when backends is empty.
type Strategy interface {
	SelectBackend(backends []*backend.Backend, key string) *backend.Backend
}
