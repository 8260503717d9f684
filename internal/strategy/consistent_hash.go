package strategy

import (
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/ironmanme/poem-gateway/internal/backend"
)

type consistentHashStrategy struct {
	virtualNodes int
	ring         atomic.Pointer[ringSnapshot]
	mutex        sync.Mutex
}

// ringSnapshot is immutable once published.
type ringSnapshot struct {
	members   uint64
	positions []uint64
	owners    map[uint64]*backend.Backend
}

// membership fingerprints the candidate set independently of its order.
func membership(backends []*backend.Backend) uint64 {
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Authority().String()
	}
	slices.Sort(names)
	return xxhash.Sum64String(strings.Join(names, ","))
}

func buildRing(backends []*backend.Backend, vnodes int, members uint64) *ringSnapshot {
	rs := &ringSnapshot{
		members:   members,
		positions: make([]uint64, 0, len(backends)*vnodes),
		owners:    make(map[uint64]*backend.Backend, len(backends)*vnodes),
	}

	for _, b := range backends {
		for i := 0; i < vnodes; i++ {
			hash := xxhash.Sum64String(b.Authority().String() + "#" + strconv.Itoa(i))
			if _, taken := rs.owners[hash]; taken {
				continue
			}
			rs.positions = append(rs.positions, hash)
			rs.owners[hash] = b
		}
	}

	slices.Sort(rs.positions)
	return rs
}

func (r *ringSnapshot) lookup(hash uint64) *backend.Backend {
	if len(r.positions) == 0 {
		return nil
	}

	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i] >= hash
	})

	if idx == len(r.positions) {
		idx = 0
	}

	return r.owners[r.positions[idx]]
}

// SelectBackend maps key onto the ring built from backends. The ring is
// rebuilt whenever the healthy set differs from the one it was built for.
func (s *consistentHashStrategy) SelectBackend(backends []*backend.Backend, key string) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	members := membership(backends)

	rs := s.ring.Load()
	if rs == nil || rs.members != members {
		s.mutex.Lock()
		rs = s.ring.Load()
		if rs == nil || rs.members != members {
			rs = buildRing(backends, s.virtualNodes, members)
			s.ring.Store(rs)
		}
		s.mutex.Unlock()
	}

	return rs.lookup(xxhash.Sum64String(key))
}

func NewConsistentHashStrategy(virtualNodes int) Strategy {
	if virtualNodes <= 0 {
		virtualNodes = 100
	}

	return &consistentHashStrategy{virtualNodes: virtualNodes}
}
