package handler

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ironmanme/poem-gateway/internal/circuitbreaker"
	"github.com/ironmanme/poem-gateway/internal/loadbalancer"
	"github.com/ironmanme/poem-gateway/internal/metrics"
)

const (
	HeaderRequestID     = "X-Request-Id"
	HeaderBackendServer = "X-Backend-Server"
)

type LoadBalancerHandler struct {
	logger           *slog.Logger
	balancer         *loadbalancer.LoadBalancer
	breakers         *circuitbreaker.Registry
	metricsCollector *metrics.Collector
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

// NewLoadBalancerHandler builds the proxy handler. breakers and collector
// may be nil.
func NewLoadBalancerHandler(logger *slog.Logger, lb *loadbalancer.LoadBalancer, breakers *circuitbreaker.Registry, collector *metrics.Collector) *LoadBalancerHandler {
	return &LoadBalancerHandler{
		logger:           logger,
		balancer:         lb,
		breakers:         breakers,
		metricsCollector: collector,
	}
}

func (lb *LoadBalancerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
		r.Header.Set(HeaderRequestID, requestID)
	}
	w.Header().Set(HeaderRequestID, requestID)

	log := lb.logger.With(slog.String("request_id", requestID))

	log.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("host", r.Host),
		slog.String("user_agent", r.UserAgent()))

	nextServer, err := lb.balancer.GetAndReserveServer(r.Context(), clientIP)
	if err != nil {
		if errors.Is(err, loadbalancer.ErrNoHealthyBackends) {
			log.Warn("No healthy backends available", slog.String("client", clientIP))
		} else {
			log.Error("Backend selection failed", slog.String("client", clientIP), slog.Any("err", err))
		}
		http.Error(w, "No healthy server available", http.StatusServiceUnavailable)
		return
	}

	node := nextServer.Authority().String()

	lb.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		Timestamp: time.Now(),
		Backend:   node,
	})

	lb.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventBackendSelected,
		Timestamp: time.Now(),
		Backend:   node,
	})

	defer nextServer.DecrementConn()
	start := time.Now()

	log.Info("Forwarding to backend",
		slog.String("client", clientIP),
		slog.String("backend", node))

	w.Header().Set(HeaderBackendServer, node)

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	nextServer.ReverseProxy().ServeHTTP(wrapped, r)

	duration := time.Since(start)
	lb.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		Backend:    node,
		Duration:   duration,
		StatusCode: wrapped.statusCode,
	})
	nextServer.RecordResponse(duration)

	if lb.breakers != nil {
		cb := lb.breakers.GetBreaker(nextServer.Authority())
		if wrapped.statusCode >= http.StatusInternalServerError {
			cb.RecordFailure()
			log.Warn("Backend returned server error",
				slog.String("backend", node),
				slog.Int("status", wrapped.statusCode),
				slog.String("breaker", cb.State().String()))
		} else {
			cb.RecordSuccess()
		}
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (lb *LoadBalancerHandler) emitEvent(event metrics.MetricEvent) {
	if lb.metricsCollector == nil {
		return
	}
	lb.metricsCollector.Emit(event)
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
