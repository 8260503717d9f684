package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ironmanme/poem-gateway/internal/authority"
	"github.com/ironmanme/poem-gateway/internal/circuitbreaker"
	"github.com/ironmanme/poem-gateway/internal/healthcheck"
)

// SnapshotSource reports the health checker's view. *healthcheck.Checker
// satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (healthcheck.Snapshot, error)
}

type upstreamStatus struct {
	healthcheck.Snapshot
	Breakers map[authority.Authority]circuitbreaker.State `json:"breakers,omitempty"`
}

// StatusHandler serves the last completed health partition as JSON.
type StatusHandler struct {
	logger   *slog.Logger
	source   SnapshotSource
	breakers *circuitbreaker.Registry
	timeout  time.Duration
}

func NewStatusHandler(logger *slog.Logger, source SnapshotSource, breakers *circuitbreaker.Registry, timeout time.Duration) *StatusHandler {
	return &StatusHandler{
		logger:   logger,
		source:   source,
		breakers: breakers,
		timeout:  timeout,
	}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	snap, err := h.source.Snapshot(ctx)
	if errors.Is(err, healthcheck.ErrStopped) {
		snap = healthcheck.Snapshot{State: healthcheck.StateStopped}
	} else if err != nil {
		h.logger.Error("Health snapshot unavailable", slog.Any("err", err))
		http.Error(w, "health state unavailable", http.StatusServiceUnavailable)
		return
	}

	status := upstreamStatus{Snapshot: snap}
	if h.breakers != nil {
		status.Breakers = h.breakers.Stats()
	}

	code := http.StatusOK
	if len(snap.Healthy) == 0 {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Error("Failed to encode health snapshot", slog.Any("err", err))
	}
}
