package metrics

import (
	"maps"
	"slices"
	"sync"
	"time"
)

const maxResponseSamples = 1000

// nodeStats accumulates everything known about one upstream node.
type nodeStats struct {
	requests    int64
	selections  int64
	healthy     bool
	samples     []time.Duration
	next        int
	statusCodes map[int]int64
}

func (n *nodeStats) addSample(d time.Duration) {
	if len(n.samples) < maxResponseSamples {
		n.samples = append(n.samples, d)
		return
	}
	// Ring buffer once full; the oldest sample is overwritten.
	n.samples[n.next] = d
	n.next = (n.next + 1) % maxResponseSamples
}

func (n *nodeStats) snapshot() BackendMetrics {
	bm := BackendMetrics{
		Requests:    n.requests,
		Selections:  n.selections,
		Healthy:     n.healthy,
		StatusCodes: maps.Clone(n.statusCodes),
	}

	if len(n.samples) > 0 {
		sorted := slices.Clone(n.samples)
		slices.Sort(sorted)

		bm.AvgResponse = average(sorted)
		bm.P50Response = percentile(sorted, 0.50)
		bm.P95Response = percentile(sorted, 0.95)
		bm.P99Response = percentile(sorted, 0.99)
	}

	return bm
}

// Metrics holds per-node counters keyed by node authority.
type Metrics struct {
	mutex     sync.RWMutex
	nodes     map[string]*nodeStats
	sweeps    uint64
	lastSweep time.Time
	startTime time.Time
}

type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	Uptime        time.Duration             `json:"uptime"`
	Backends      map[string]BackendMetrics `json:"backends"`
	Algorithm     string                    `json:"algorithm"`
	HealthSweeps  uint64                    `json:"health_sweeps"`
	LastSweep     time.Time                 `json:"last_sweep,omitzero"`
}

type BackendMetrics struct {
	Requests    int64         `json:"requests"`
	Selections  int64         `json:"selections"`
	Healthy     bool          `json:"healthy"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		nodes:     make(map[string]*nodeStats),
		startTime: time.Now(),
	}
}

// node returns the stats for backend, creating them. Callers hold the write
// lock.
func (m *Metrics) node(backend string) *nodeStats {
	n, ok := m.nodes[backend]
	if !ok {
		n = &nodeStats{statusCodes: make(map[int]int64)}
		m.nodes[backend] = n
	}
	return n
}

func (m *Metrics) IncrementRequests(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.node(backend).requests++
}

func (m *Metrics) RecordBackendSelection(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.node(backend).selections++
}

func (m *Metrics) RecordResponse(backend string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	n := m.node(backend)
	n.addSample(duration)
	n.statusCodes[statusCode]++
}

func (m *Metrics) UpdateHealthStatus(backend string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.node(backend).healthy = healthy
}

// RecordSweep notes a completed health sweep.
func (m *Metrics) RecordSweep(at time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sweeps++
	m.lastSweep = at
}

func (m *Metrics) Snapshot(algorithm string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:       time.Since(m.startTime),
		Backends:     make(map[string]BackendMetrics, len(m.nodes)),
		Algorithm:    algorithm,
		HealthSweeps: m.sweeps,
		LastSweep:    m.lastSweep,
	}

	for backend, n := range m.nodes {
		snap.TotalRequests += n.requests
		snap.Backends[backend] = n.snapshot()
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
