package healthcheck

import (
	"net/http"
	"time"
)

type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 5 * time.Second
	DefaultPath     = "health"
)

// Config controls how nodes are probed. It is copied when a Checker is
// created and never changes afterwards.
type Config struct {
	Scheme   Scheme
	Path     string
	Interval time.Duration
	// Timeout bounds a single probe.
	Timeout time.Duration
	// Status lists the response codes that count as healthy.
	Status []int
	// MaxConcurrentProbes caps in-flight probes per sweep. Zero means one
	// probe per node.
	MaxConcurrentProbes int
}

// settings is the frozen form of Config shared by all probe goroutines.
type settings struct {
	scheme   Scheme
	path     string
	interval time.Duration
	timeout  time.Duration
	status   map[int]struct{}
	limit    int
}

func newSettings(cfg Config) *settings {
	s := &settings{
		scheme:   cfg.Scheme,
		path:     cfg.Path,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		status:   make(map[int]struct{}, len(cfg.Status)),
		limit:    cfg.MaxConcurrentProbes,
	}

	if s.scheme == "" {
		s.scheme = SchemeHTTP
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}

	for _, code := range cfg.Status {
		s.status[code] = struct{}{}
	}
	if len(s.status) == 0 {
		s.status[http.StatusOK] = struct{}{}
	}

	return s
}

func (s *settings) acceptable(code int) bool {
	_, ok := s.status[code]
	return ok
}
