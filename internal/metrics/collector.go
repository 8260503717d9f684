package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/ironmanme/poem-gateway/internal/healthcheck"
)

type EventType string

const (
	EventRequestReceived   EventType = "request_received"
	EventBackendSelected   EventType = "backend_selected"
	EventResponseCompleted EventType = "response_completed"
	EventHealthChanged     EventType = "health_changed"
	EventSweepCompleted    EventType = "sweep_completed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Backend    string
	Duration   time.Duration
	StatusCode int
	Healthy    bool
}

type Collector struct {
	eventCh    chan MetricEvent
	metrics    *Metrics
	prometheus *Prometheus
	logger     *slog.Logger
}

// NewCollector creates a collector. prom may be nil.
func NewCollector(bufferSize int, logger *slog.Logger, prom *Prometheus) *Collector {
	return &Collector{
		eventCh:    make(chan MetricEvent, bufferSize),
		metrics:    NewMetrics(),
		prometheus: prom,
		logger:     logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues event without blocking. Events are dropped when the buffer is
// full.
func (c *Collector) Emit(event MetricEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Metrics buffer full, dropping event", slog.String("type", string(event.Type)))
	}
}

// ObserveSweep turns a completed health sweep into health events. It is
// meant to be registered with healthcheck.WithSweepListener and never blocks.
func (c *Collector) ObserveSweep(snap healthcheck.Snapshot) {
	for _, node := range snap.Healthy {
		c.Emit(MetricEvent{Type: EventHealthChanged, Timestamp: snap.LastSweep, Backend: node.String(), Healthy: true})
	}
	for _, node := range snap.Unhealthy {
		c.Emit(MetricEvent{Type: EventHealthChanged, Timestamp: snap.LastSweep, Backend: node.String()})
	}
	c.Emit(MetricEvent{Type: EventSweepCompleted, Timestamp: snap.LastSweep})
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	if c.prometheus != nil {
		c.prometheus.observe(event)
	}

	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests(event.Backend)

	case EventBackendSelected:
		c.metrics.RecordBackendSelection(event.Backend)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Backend, event.Duration, event.StatusCode)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Backend, event.Healthy)

	case EventSweepCompleted:
		c.metrics.RecordSweep(event.Timestamp)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(algorithm string) Snapshot {
	return c.metrics.Snapshot(algorithm)
}
