package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics holds all Prometheus metrics
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram

	// Search metrics
	GenerationsTotal prometheus.Counter
	EvaluationsTotal *prometheus.CounterVec

	// Baseline metrics
	BaselineDuration *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Fetch protection metrics
	FetchRetriesTotal *prometheus.CounterVec
	CircuitStateTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new Prometheus metrics instance on its own
// registry, so several instances can coexist in one process.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,

		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featsel_runs_total",
				Help: "Total number of feature-selection runs",
			},
			[]string{"status"},
		),

		RunDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "featsel_run_duration_seconds",
				Help:    "Wall-clock duration of feature-selection runs",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		GenerationsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "featsel_generations_total",
				Help: "Total number of evaluated GA generations",
			},
		),

		EvaluationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featsel_fitness_evaluations_total",
				Help: "Total number of fitness evaluations",
			},
			[]string{"outcome"},
		),

		BaselineDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "featsel_baseline_duration_seconds",
				Help:    "Duration of baseline feature-selection methods",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featsel_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "status"},
		),

		CacheHitsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "featsel_cache_hits_total",
				Help: "Total number of run cache hits",
			},
		),

		CacheMissesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "featsel_cache_misses_total",
				Help: "Total number of run cache misses",
			},
		),

		FetchRetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featsel_fetch_retries_total",
				Help: "Total number of dataset download retries",
			},
			[]string{"host", "reason"},
		),

		CircuitStateTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featsel_fetch_circuit_transitions_total",
				Help: "Circuit breaker state transitions for dataset downloads",
			},
			[]string{"host", "state"},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun records the outcome and duration of a run
func (m *PrometheusMetrics) RecordRun(status string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(duration.Seconds())
}

// RecordGeneration counts one evaluated generation
func (m *PrometheusMetrics) RecordGeneration() {
	m.GenerationsTotal.Inc()
}

// RecordEvaluation counts one fitness evaluation; outcome is "ok" or "infeasible"
func (m *PrometheusMetrics) RecordEvaluation(outcome string) {
	m.EvaluationsTotal.WithLabelValues(outcome).Inc()
}

// RecordBaseline records a baseline method duration
func (m *PrometheusMetrics) RecordBaseline(method, status string, duration time.Duration) {
	m.BaselineDuration.WithLabelValues(method, status).Observe(duration.Seconds())
}

// RecordHTTPRequest records a served request
func (m *PrometheusMetrics) RecordHTTPRequest(path, status string) {
	m.HTTPRequestsTotal.WithLabelValues(path, status).Inc()
}

// RecordCacheHit records a cache hit
func (m *PrometheusMetrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func (m *PrometheusMetrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}

// RecordRetry records a retry attempt
func (m *PrometheusMetrics) RecordRetry(host, reason string) {
	m.FetchRetriesTotal.WithLabelValues(host, reason).Inc()
}

// RecordCircuitState records a circuit breaker state change
func (m *PrometheusMetrics) RecordCircuitState(host, state string) {
	m.CircuitStateTotal.WithLabelValues(host, state).Inc()
}
