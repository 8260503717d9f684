package loadbalancer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ironmanme/poem-gateway/internal/authority"
	"github.com/ironmanme/poem-gateway/internal/backend"
	"github.com/ironmanme/poem-gateway/internal/circuitbreaker"
	"github.com/ironmanme/poem-gateway/internal/healthcheck"
	"github.com/ironmanme/poem-gateway/internal/strategy"
)

var (
	ErrNoHealthyBackends = errors.New("no healthy backends")
	ErrHealthUnavailable = errors.New("health state unavailable")
)

// HealthSource answers which upstream to use. *healthcheck.Checker
// satisfies it.
type HealthSource interface {
	Get(ctx context.Context, sel healthcheck.Selector) (authority.Authority, error)
}

type LoadBalancer struct {
	health       HealthSource
	pool         *backend.Pool
	strategy     strategy.Strategy
	breakers     *circuitbreaker.Registry
	queryTimeout time.Duration
}

// NewLoadBalancer wires selection together. breakers may be nil, and a zero
// queryTimeout leaves health queries bounded only by the request context.
func NewLoadBalancer(health HealthSource, pool *backend.Pool, strategy strategy.Strategy, breakers *circuitbreaker.Registry, queryTimeout time.Duration) *LoadBalancer {
	return &LoadBalancer{
		health:       health,
		pool:         pool,
		strategy:     strategy,
		breakers:     breakers,
		queryTimeout: queryTimeout,
	}
}

// GetAndReserveServer picks a backend among the nodes the last health sweep
// found healthy, skipping nodes whose breaker is open, and counts a new
// active connection on it. key feeds hashing strategies.
func (lb *LoadBalancer) GetAndReserveServer(ctx context.Context, key string) (*backend.Backend, error) {
	if lb.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, lb.queryTimeout)
		defer cancel()
	}

	node, err := lb.health.Get(ctx, lb.selector(key))
	switch {
	case errors.Is(err, healthcheck.ErrNoSelection):
		return nil, ErrNoHealthyBackends
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrHealthUnavailable, err)
	}

	chosen, ok := lb.pool.Get(node)
	if !ok {
		return nil, fmt.Errorf("selected unknown node %s", node)
	}

	// Another request may have claimed the half-open slot since selection.
	if lb.breakers != nil && !lb.breakers.GetBreaker(node).Allow() {
		return nil, ErrNoHealthyBackends
	}

	chosen.IncrementConn()
	return chosen, nil
}

func (lb *LoadBalancer) selector(key string) healthcheck.Selector {
	return func(healthy []authority.Authority) (authority.Authority, bool) {
		candidates := lb.pool.Resolve(healthy)

		if lb.breakers != nil {
			available := candidates[:0]
			for _, b := range candidates {
				if lb.breakers.Available(b.Authority()) {
					available = append(available, b)
				}
			}
			candidates = available
		}

		chosen := lb.strategy.SelectBackend(candidates, key)
		if chosen == nil {
			return "", false
		}
		return chosen.Authority(), true
	}
}

func (lb *LoadBalancer) LoadBalancerStrategy() strategy.Strategy {
	return lb.strategy
}
