package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the gateway collectors. Each instance owns its registry so
// tests can build as many as they like without duplicate registration panics.
type Metrics struct {
	registry *prometheus.Registry

	Decisions     *prometheus.CounterVec
	Fetches       *prometheus.CounterVec
	Expirations   *prometheus.CounterVec
	AccessRecords *prometheus.CounterVec
	httpInFlight  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hwidgate_decisions_total",
			Help: "Authorization decisions by outcome.",
		}, []string{"outcome"}),

		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hwidgate_content_fetches_total",
			Help: "Content retrievals by source (upstream, fallback, failed).",
		}, []string{"source"}),

		Expirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hwidgate_registry_expirations_total",
			Help: "Expiration writes by result (written, noop, error).",
		}, []string{"result"}),

		AccessRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hwidgate_access_records_total",
			Help: "Access log records by result (written, dropped, failed).",
		}, []string{"result"}),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.Decisions, m.Fetches, m.Expirations, m.AccessRecords,
		m.httpInFlight, m.httpRequests, m.httpDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument records RPS, latency and in-flight requests. The route label is
// the matched ServeMux pattern rather than the raw path so that scanners
// probing random URLs cannot blow up label cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(sw.code)

		m.httpDurations.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// The Observe helpers are nil-safe so services can run without metrics.

func (m *Metrics) ObserveDecision(outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveFetch(source string) {
	if m != nil {
		m.Fetches.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) ObserveExpiration(result string) {
	if m != nil {
		m.Expirations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveAccessRecord(result string) {
	if m != nil {
		m.AccessRecords.WithLabelValues(result).Inc()
	}
}
