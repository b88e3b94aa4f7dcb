// Package observability holds the Prometheus instrumentation for
// flowbench-server.
//
// Metrics are created against an explicit Registerer so tests can use a
// private registry. Every recording helper is nil-safe: packages accept a
// *Metrics and callers that do not care about instrumentation pass nil.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "flowbench"

// Record kinds.
const (
	KindExecution = "execution"
	KindNode      = "node"
)

// Record outcomes.
const (
	StatusOK         = "ok"
	StatusInvalid    = "invalid"
	StatusStoreError = "store_error"
)

// Benchmark outcomes.
const (
	BenchmarkOK           = "ok"
	BenchmarkNoExecutions = "no_executions"
	BenchmarkTimeout      = "timeout"
	BenchmarkError        = "error"
)

// Metrics is the full set of flowbench collectors.
type Metrics struct {
	// RecordsTotal counts ingested records.
	// Labels: kind (execution, node), status (ok, invalid, store_error)
	RecordsTotal *prometheus.CounterVec

	// CacheRequestsTotal counts analytics cache lookups.
	// Labels: cache (analytics, benchmark_trends, rankings), result (hit, miss)
	CacheRequestsTotal *prometheus.CounterVec

	// BenchmarkRunsTotal counts benchmark runs by outcome.
	BenchmarkRunsTotal *prometheus.CounterVec

	// BenchmarkDurationSeconds measures wall time of a full benchmark run.
	BenchmarkDurationSeconds prometheus.Histogram

	// BenchmarkOverallScore is the distribution of overall scores (0-100).
	BenchmarkOverallScore prometheus.Histogram

	// StoreQueryDurationSeconds measures event store reads.
	// Labels: op (executions, nodes, reports, latest_reports)
	StoreQueryDurationSeconds *prometheus.HistogramVec

	// HTTPRequestsTotal counts API requests.
	// Labels: route (mux path template), code
	HTTPRequestsTotal *prometheus.CounterVec

	// StreamClients is the number of connected counter-stream clients.
	StreamClients prometheus.Gauge
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "recorder",
				Name:      "records_total",
				Help:      "Total records received by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		CacheRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "analytics",
				Name:      "cache_requests_total",
				Help:      "Analytics cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
		BenchmarkRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "benchmark",
				Name:      "runs_total",
				Help:      "Benchmark runs by outcome",
			},
			[]string{"status"},
		),
		BenchmarkDurationSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "benchmark",
				Name:      "duration_seconds",
				Help:      "Wall time of a benchmark run in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		BenchmarkOverallScore: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "benchmark",
				Name:      "overall_score",
				Help:      "Distribution of benchmark overall scores",
				Buckets:   []float64{50, 60, 70, 80, 85, 90, 95, 100},
			},
		),
		StoreQueryDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "eventstore",
				Name:      "query_duration_seconds",
				Help:      "Event store query latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "API requests by route template and status code",
			},
			[]string{"route", "code"},
		),
		StreamClients: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "stream",
				Name:      "clients",
				Help:      "Connected counter stream clients",
			},
		),
	}
}

func (m *Metrics) ObserveRecord(kind, status string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequestsTotal.WithLabelValues(cache, result).Inc()
}

// ObserveBenchmark records one run. score is ignored unless status is ok.
func (m *Metrics) ObserveBenchmark(status string, took time.Duration, score float64) {
	if m == nil {
		return
	}
	m.BenchmarkRunsTotal.WithLabelValues(status).Inc()
	m.BenchmarkDurationSeconds.Observe(took.Seconds())
	if status == BenchmarkOK {
		m.BenchmarkOverallScore.Observe(score)
	}
}

func (m *Metrics) ObserveStoreQuery(op string, took time.Duration) {
	if m == nil {
		return
	}
	m.StoreQueryDurationSeconds.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Metrics) ObserveHTTP(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, statusText(code)).Inc()
}

func (m *Metrics) StreamClientDelta(d float64) {
	if m == nil {
		return
	}
	m.StreamClients.Add(d)
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
