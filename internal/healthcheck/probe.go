package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ironmanme/poem-gateway/internal/authority"
)

// ErrProbePanicked marks a node whose probe goroutine panicked.
var ErrProbePanicked = errors.New("probe panicked")

// Result is the outcome of probing one node.
type Result struct {
	Authority  authority.Authority
	Healthy    bool
	StatusCode int
	Err        error
}

// StatusError reports a response whose status code is not in the accepted set.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// A Prober performs a single health check against one node. Implementations
// report failures through Result and must not panic.
type Prober interface {
	Probe(ctx context.Context, node authority.Authority) Result
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, node authority.Authority) Result

func (f ProberFunc) Probe(ctx context.Context, node authority.Authority) Result {
	return f(ctx, node)
}

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type httpProber struct {
	settings *settings
	client   Doer
}

// NewHTTPProber returns a Prober that issues GET {scheme}://{node}/{path}
// and treats the node as healthy iff the status code is in cfg.Status.
func NewHTTPProber(cfg Config, client Doer) Prober {
	return newHTTPProber(newSettings(cfg), client)
}

func newHTTPProber(s *settings, client Doer) *httpProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpProber{settings: s, client: client}
}

func (p *httpProber) Probe(ctx context.Context, node authority.Authority) Result {
	result := Result{Authority: node}

	target, err := targetURL(p.settings.scheme, node, p.settings.path)
	if err != nil {
		result.Err = err
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, p.settings.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		result.Err = err
		return result
	}

	res, err := p.client.Do(req)
	if err != nil {
		result.Err = err
		return result
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))

	result.StatusCode = res.StatusCode
	result.Healthy = p.settings.acceptable(res.StatusCode)
	if !result.Healthy {
		result.Err = &StatusError{StatusCode: res.StatusCode}
	}

	return result
}

func targetURL(scheme Scheme, node authority.Authority, path string) (string, error) {
	raw := fmt.Sprintf("%s://%s/%s", scheme, node, strings.TrimPrefix(path, "/"))

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("build probe url: %w", err)
	}

	if u.Scheme != string(SchemeHTTP) && u.Scheme != string(SchemeHTTPS) {
		return "", fmt.Errorf("build probe url: unsupported scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return "", fmt.Errorf("build probe url: missing host in %q", raw)
	}

	return u.String(), nil
}
