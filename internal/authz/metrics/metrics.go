// Package metrics provides observability for the authorization engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Decision outcomes by verdict and risk recommendation
	DecisionOutcome *prometheus.CounterVec

	// Full pipeline latency including audit count prefetch
	EvaluateLatency prometheus.Histogram

	// Audit count prefetch latency by query
	PrefetchLatency *prometheus.HistogramVec

	// Internal failures converted to fail-closed decisions, by stage
	OrchestrationErrors *prometheus.CounterVec
}

// New creates a Metrics instance with all engine metrics registered.
func New() *Metrics {
	return &Metrics{
		DecisionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultgate_authz_decisions_total",
			Help: "Total authorization decisions by verdict and risk recommendation",
		}, []string{"verdict", "recommendation"}),

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vaultgate_authz_evaluate_duration_seconds",
			Help:    "Duration of full authorization evaluation including audit count prefetch",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		PrefetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vaultgate_authz_prefetch_duration_seconds",
			Help:    "Duration of audit count prefetch queries by query kind",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"query"}), // query: "operation_frequency", "failed_logins"

		OrchestrationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultgate_authz_orchestration_errors_total",
			Help: "Total internal errors converted to fail-closed decisions, by stage",
		}, []string{"stage"}),
	}
}

// IncrementOutcome records one decision outcome.
func (m *Metrics) IncrementOutcome(verdict, recommendation string) {
	if m != nil {
		m.DecisionOutcome.WithLabelValues(verdict, recommendation).Inc()
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// ObservePrefetchLatency records the duration of one audit count query.
func (m *Metrics) ObservePrefetchLatency(query string, d time.Duration) {
	if m != nil {
		m.PrefetchLatency.WithLabelValues(query).Observe(d.Seconds())
	}
}

// IncrementOrchestrationError records one fail-closed conversion.
func (m *Metrics) IncrementOrchestrationError(stage string) {
	if m != nil {
		m.OrchestrationErrors.WithLabelValues(stage).Inc()
	}
}
