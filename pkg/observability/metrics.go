// Package observability exposes the Prometheus metrics for the API server:
// request counts and latencies, retrieval pipeline activity, and activity-bus
// overflow.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors registered against one registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ToolExecutions  *prometheus.CounterVec
	QueriesTotal    prometheus.Counter
	MemoriesCreated prometheus.Counter
	EventsDropped   prometheus.CounterFunc
}

// NewMetrics builds a fresh registry with all collectors. droppedEvents may be
// nil when the activity bus is disabled.
func NewMetrics(droppedEvents func() int64) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())

	m := &Metrics{
		registry: reg,
		RequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "forgetful",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forgetful",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ToolExecutions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "forgetful",
			Name:      "tool_executions_total",
			Help:      "Meta-tool executions by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		QueriesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "forgetful",
			Name:      "memory_queries_total",
			Help:      "Memory recall queries served.",
		}),
		MemoriesCreated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "forgetful",
			Name:      "memories_created_total",
			Help:      "Memories stored.",
		}),
	}

	if droppedEvents != nil {
		m.EventsDropped = promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
			Namespace: "forgetful",
			Name:      "activity_events_dropped_total",
			Help:      "Activity events evicted by ring overflow.",
		}, func() float64 { return float64(droppedEvents()) })
	}
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument wraps an HTTP handler, recording count and latency under the
// given route label.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
