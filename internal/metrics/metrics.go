// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "banners"

// Registry owns the collectors so tests and multiple servers never share global state.
type Registry struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
	selectionSize      prometheus.Histogram
	selectionFallbacks prometheus.Counter
	operations         *prometheus.CounterVec
}

// New registers the collectors, including Go runtime and process metrics.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		selectionSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selection_size",
			Help:      "Number of banners returned by the public selection endpoint.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		selectionFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_fallbacks_total",
			Help:      "Selections answered with an empty list because the config store was unavailable.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_operations_total",
			Help:      "Administrative operations by name and outcome.",
		}, []string{"operation", "outcome"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpLatency,
		r.selectionSize,
		r.selectionFallbacks,
		r.operations,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveRequest records one finished HTTP request.
func (r *Registry) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveSelection records the size of a public selection and whether it fell back to empty.
func (r *Registry) ObserveSelection(size int, fallback bool) {
	if r == nil {
		return
	}
	r.selectionSize.Observe(float64(size))
	if fallback {
		r.selectionFallbacks.Inc()
	}
}

// ObserveOperation counts an administrative operation outcome such as "ok" or "conflict".
func (r *Registry) ObserveOperation(operation, outcome string) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, outcome).Inc()
}
