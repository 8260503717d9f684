// Package metrics collects request and health statistics for the gateway.
//
// Request handlers and the health checker's sweep listener publish
// MetricEvents; a single Collector goroutine folds them into per-node
// counters (requests, selections, status codes, latency percentiles over the
// last 1000 responses, health) and, when configured, Prometheus instruments.
// Publishing never blocks: events are dropped when the buffer is full.
//
//	prom := metrics.NewPrometheus()
//	collector := metrics.NewCollector(1000, logger, prom)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Backend:    "localhost:8081",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	mux.Handle("GET /metrics", collector.Handler("round-robin"))
//	mux.Handle("GET /metrics/prometheus", prom.Handler())
//
// Cancelling the context passed to Start drains queued events before the
// collector exits.
package metrics
