package healthcheck

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ironmanme/poem-gateway/internal/authority"
)

// Partition is the outcome of a completed sweep. Every swept node appears in
// exactly one of the two lists.
type Partition struct {
	Healthy   []authority.Authority `json:"healthy"`
	Unhealthy []authority.Authority `json:"unhealthy"`
}

// NewPartition splits sweep results into healthy and unhealthy nodes.
func NewPartition(results []Result) Partition {
	p := Partition{
		Healthy:   make([]authority.Authority, 0, len(results)),
		Unhealthy: make([]authority.Authority, 0, len(results)),
	}

	for _, r := range results {
		if r.Healthy {
			p.Healthy = append(p.Healthy, r.Authority)
		} else {
			p.Unhealthy = append(p.Unhealthy, r.Authority)
		}
	}

	return p
}

// Len returns the number of nodes in the partition.
func (p Partition) Len() int {
	return len(p.Healthy) + len(p.Unhealthy)
}

// IsHealthy reports whether node is in the healthy list.
func (p Partition) IsHealthy(node authority.Authority) bool {
	for _, h := range p.Healthy {
		if h == node {
			return true
		}
	}
	return false
}

func (p Partition) clone() Partition {
	return Partition{
		Healthy:   append([]authority.Authority(nil), p.Healthy...),
		Unhealthy: append([]authority.Authority(nil), p.Unhealthy...),
	}
}

// Sweep probes every node concurrently, at most limit at a time, and returns
// one Result per node in input order. A limit <= 0 runs all probes at once.
// Sweep returns only after every probe has finished; cancelling ctx cuts
// in-flight probes short and they report as unhealthy.
func Sweep(ctx context.Context, nodes []authority.Authority, prober Prober, limit int) []Result {
	results := make([]Result, len(nodes))
	if len(nodes) == 0 {
		return results
	}

	if limit <= 0 || limit > len(nodes) {
		limit = len(nodes)
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, node := range nodes {
		g.Go(func() error {
			results[i] = probeOne(ctx, node, prober)
			return nil
		})
	}

	_ = g.Wait()

	return results
}

func probeOne(ctx context.Context, node authority.Authority, prober Prober) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{
				Authority: node,
				Err:       fmt.Errorf("%w: %v", ErrProbePanicked, r),
			}
		}
	}()

	result = prober.Probe(ctx, node)
	result.Authority = node

	return result
}
