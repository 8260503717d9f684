package backend

import (
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/ironmanme/poem-gateway/internal/authority"
)

// Backend is an upstream node with connection tracking and response time
// monitoring.
type Backend struct {
	authority         authority.Authority
	url               *url.URL
	weight            int
	proxy             *httputil.ReverseProxy
	mutex             sync.Mutex
	activeConnections int
	ewmaResponseTime  time.Duration
	hasEWMA           bool
}

const ewmaAlpha = 0.2

// New creates a Backend that proxies to scheme://node. Weights below 1 are
// treated as 1.
func New(scheme string, node authority.Authority, weight int) *Backend {
	if weight < 1 {
		weight = 1
	}

	u := &url.URL{Scheme: scheme, Host: node.String()}

	return &Backend{
		authority: node,
		url:       u,
		weight:    weight,
		proxy:     httputil.NewSingleHostReverseProxy(u),
	}
}

// ReverseProxy returns the HTTP reverse proxy for this backend.
func (b *Backend) ReverseProxy() *httputil.ReverseProxy {
	return b.proxy
}

// Authority returns the node this backend proxies to.
func (b *Backend) Authority() authority.Authority {
	return b.authority
}

// URL returns the base URL requests are forwarded to.
func (b *Backend) URL() *url.URL {
	return b.url
}

func (b *Backend) Weight() int {
	return b.weight
}

// IncrementConn increments the active connection count.
func (b *Backend) IncrementConn() {
	b.mutex.Lock()
	b.activeConnections++
	b.mutex.Unlock()
}

// DecrementConn decrements the active connection count.
func (b *Backend) DecrementConn() {
	b.mutex.Lock()
	if b.activeConnections > 0 {
		b.activeConnections--
	}
	b.mutex.Unlock()
}

// ActiveConnections returns the current number of active connections.
func (b *Backend) ActiveConnections() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.activeConnections
}

// RecordResponse updates the exponentially weighted moving average (EWMA)
// response time using the latest request duration.
func (b *Backend) RecordResponse(duration time.Duration) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		b.ewmaResponseTime = duration
		b.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	b.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(b.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns the exponentially weighted moving average response time.
// Returns 0 if no responses have been recorded yet.
func (b *Backend) EWMATime() time.Duration {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		return 0
	}

	return b.ewmaResponseTime
}
