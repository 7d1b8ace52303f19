// Pull-side Prometheus metrics behind an explicitly-owned registry.
// The registry is constructed here and injected into the router, never global.
package demo

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetrics owns the scrape registry and the request counter/histogram.
type PromMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPromMetrics builds a fresh registry with the request vectors and the
// standard Go runtime and process collectors registered.
func NewPromMetrics() *PromMetrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	registry.MustRegister(
		requests,
		duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &PromMetrics{
		registry: registry,
		requests: requests,
		duration: duration,
	}
}

// ObserveRequest increments the counter and records the duration sample.
// Concurrent-safe: the underlying vectors use atomic updates.
func (p *PromMetrics) ObserveRequest(_ context.Context, info RequestInfo) {
	status := strconv.Itoa(info.Status)
	p.requests.WithLabelValues(info.Method, info.Route, status).Inc()
	p.duration.WithLabelValues(info.Method, info.Route).Observe(info.Duration.Seconds())
}

// Handler serves the registry in Prometheus text exposition format.
func (p *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
