package healthcheck

import (
	"time"

	"github.com/ironmanme/poem-gateway/internal/authority"
)

// State is the lifecycle state of the checker goroutine.
type State int

const (
	StateIdle     State = iota // Waiting for the next tick
	StateSweeping              // A sweep is in flight
	StateStopped               // Loop has exited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSweeping:
		return "sweeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a copy of the checker's view at the time a query was handled.
type Snapshot struct {
	Partition
	State State `json:"state"`
	// Sweeps counts completed sweeps; zero means no result yet.
	Sweeps    uint64    `json:"sweeps"`
	LastSweep time.Time `json:"last_sweep"`
}

// Selector picks one node from the healthy list, or returns false to
// decline. It runs on the caller's goroutine and receives a private copy.
type Selector func(healthy []authority.Authority) (authority.Authority, bool)

// First selects the first healthy node.
func First(healthy []authority.Authority) (authority.Authority, bool) {
	if len(healthy) == 0 {
		return "", false
	}
	return healthy[0], true
}

type commandKind int

const (
	commandGet commandKind = iota
	commandSnapshot
)

type command struct {
	kind  commandKind
	reply chan Snapshot
}
