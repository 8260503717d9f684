package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateway"

// Prometheus mirrors collector events into Prometheus instruments on a
// private registry.
type Prometheus struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	responses *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	healthy   *prometheus.GaugeVec
	sweeps    prometheus.Counter
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Requests forwarded to each upstream node.",
		}, []string{"backend"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "responses_total",
			Help:      "Upstream responses by status code.",
		}, []string{"backend", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "response_duration_seconds",
			Help:      "Time spent proxying a request to an upstream node.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		healthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "healthy",
			Help:      "1 if the last completed health sweep found the node healthy.",
		}, []string{"backend"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "sweeps_total",
			Help:      "Completed health sweeps.",
		}),
	}

	p.registry.MustRegister(
		p.requests,
		p.responses,
		p.latency,
		p.healthy,
		p.sweeps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return p
}

func (p *Prometheus) observe(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		p.requests.WithLabelValues(event.Backend).Inc()

	case EventResponseCompleted:
		p.responses.WithLabelValues(event.Backend, strconv.Itoa(event.StatusCode)).Inc()
		p.latency.WithLabelValues(event.Backend).Observe(event.Duration.Seconds())

	case EventHealthChanged:
		v := 0.0
		if event.Healthy {
			v = 1
		}
		p.healthy.WithLabelValues(event.Backend).Set(v)

	case EventSweepCompleted:
		p.sweeps.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		Timeout: 5 * time.Second,
	})
}
