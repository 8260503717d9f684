package main

import (
	"net/http"

	"github.com/ironmanme/poem-gateway/internal/handler"
	"github.com/ironmanme/poem-gateway/internal/metrics"
)

func setupRouter(
	loadBalancerHandler *handler.LoadBalancerHandler,
	statusHandler *handler.StatusHandler,
	metricsCollector *metrics.Collector,
	prom *metrics.Prometheus,
	strategy string,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", loadBalancerHandler)
	mux.HandleFunc("GET /metrics", metricsCollector.Handler(strategy))
	mux.Handle("GET /metrics/prometheus", prom.Handler())
	mux.Handle("GET /health/upstreams", statusHandler)

	return mux
}
