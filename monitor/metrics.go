// Package monitor provides the observability surface for stonebox:
// Prometheus metrics for executions and OpenTelemetry trace helpers.
package monitor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics recorded around executions.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ActiveExecutions  prometheus.Gauge
	CompileFailures   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stonebox",
				Name:      "executions_total",
				Help:      "Total executions by language and status.",
			},
			[]string{"language", "status"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stonebox",
				Name:      "execution_duration_seconds",
				Help:      "Wall-clock duration of executions in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"language"},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "stonebox",
				Name:      "active_executions",
				Help:      "Executions currently in flight.",
			},
		),

		CompileFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stonebox",
				Name:      "compile_failures_total",
				Help:      "Host-side compile stage failures by language.",
			},
			[]string{"language"},
		),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.ActiveExecutions,
		m.CompileFailures,
	)
	return m
}

// ObserveExecution records one completed (or failed) execution.
func (m *Metrics) ObserveExecution(language, status string, elapsed time.Duration) {
	m.ExecutionsTotal.WithLabelValues(language, status).Inc()
	m.ExecutionDuration.WithLabelValues(language).Observe(elapsed.Seconds())
	if status == "compile_error" {
		m.CompileFailures.WithLabelValues(language).Inc()
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics instance, created on first use.
// Callers that want to expose the metrics mount Default().Registry behind a
// promhttp handler.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}
