// Package metrics provides Prometheus metrics for the memvault stores.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for a memvault process.
type Metrics struct {
	ActionsTotal     *prometheus.CounterVec
	ErrorsDetected   *prometheus.CounterVec
	RecoveryAttempts *prometheus.CounterVec
	QARunsTotal      prometheus.Counter
	QALastScore      prometheus.Gauge
	OperationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memvault_actions_total",
				Help: "Total build-log actions recorded, by action type.",
			},
			[]string{"action"},
		),
		ErrorsDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memvault_errors_detected_total",
				Help: "Total integrity errors detected, by type and severity.",
			},
			[]string{"type", "severity"},
		),
		RecoveryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memvault_recovery_attempts_total",
				Help: "Total recovery runs, by tier and outcome.",
			},
			[]string{"tier", "outcome"},
		),
		QARunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memvault_qa_runs_total",
				Help: "Total QA report generations.",
			},
		),
		QALastScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memvault_qa_last_score",
				Help: "Score of the most recent QA report (0-100).",
			},
		),
		OperationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memvault_operation_duration_seconds",
				Help:    "Store operation duration, by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		registry: reg,
	}

	reg.MustRegister(m.ActionsTotal)
	reg.MustRegister(m.ErrorsDetected)
	reg.MustRegister(m.RecoveryAttempts)
	reg.MustRegister(m.QARunsTotal)
	reg.MustRegister(m.QALastScore)
	reg.MustRegister(m.OperationSeconds)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAction increments the action counter.
func (m *Metrics) RecordAction(action string) {
	m.ActionsTotal.WithLabelValues(action).Inc()
}

// RecordErrorDetected increments the detected-error counter.
func (m *Metrics) RecordErrorDetected(errType, severity string) {
	m.ErrorsDetected.WithLabelValues(errType, severity).Inc()
}

// RecordRecovery increments the recovery counter.
func (m *Metrics) RecordRecovery(tier, outcome string) {
	m.RecoveryAttempts.WithLabelValues(tier, outcome).Inc()
}

// RecordQARun counts a QA run and stores its score.
func (m *Metrics) RecordQARun(score int) {
	m.QARunsTotal.Inc()
	m.QALastScore.Set(float64(score))
}

// ObserveDuration records an operation's duration.
func (m *Metrics) ObserveDuration(operation string, seconds float64) {
	m.OperationSeconds.WithLabelValues(operation).Observe(seconds)
}
