package backend

import (
	"github.com/ironmanme/poem-gateway/internal/authority"
)

// Pool indexes backends by authority. It is built once and read-only
// afterwards, so it needs no locking.
type Pool struct {
	byAuthority map[authority.Authority]*Backend
	order       []authority.Authority
}

// NewPool builds a pool. Later backends with an authority already present
// are ignored.
func NewPool(backends ...*Backend) *Pool {
	p := &Pool{
		byAuthority: make(map[authority.Authority]*Backend, len(backends)),
		order:       make([]authority.Authority, 0, len(backends)),
	}

	for _, b := range backends {
		if _, ok := p.byAuthority[b.Authority()]; ok {
			continue
		}
		p.byAuthority[b.Authority()] = b
		p.order = append(p.order, b.Authority())
	}

	return p
}

// Get returns the backend for node.
func (p *Pool) Get(node authority.Authority) (*Backend, bool) {
	b, ok := p.byAuthority[node]
	return b, ok
}

// Resolve maps nodes to backends, skipping nodes the pool does not know.
func (p *Pool) Resolve(nodes []authority.Authority) []*Backend {
	out := make([]*Backend, 0, len(nodes))
	for _, n := range nodes {
		if b, ok := p.byAuthority[n]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Authorities returns every node in insertion order.
func (p *Pool) Authorities() []authority.Authority {
	return append([]authority.Authority(nil), p.order...)
}

func (p *Pool) Len() int {
	return len(p.order)
}
