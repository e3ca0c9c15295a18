package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the consent module.
type Metrics struct {
	// Operation outcomes by operation, intent type, and result code
	OperationOutcome *prometheus.CounterVec

	// Accepted state transitions by from/to status
	StateTransitions *prometheus.CounterVec

	// Version conflicts observed on conditioned writes
	VersionConflicts prometheus.Counter

	// Create requests answered from an existing consent via the idempotency key
	IdempotentReplays prometheus.Counter

	// Operation latency by operation
	OperationLatency *prometheus.HistogramVec
}

// New creates a Metrics instance with all consent module metrics registered.
func New() *Metrics {
	return &Metrics{
		OperationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "obconsent_operations_total",
			Help: "Total consent operations by operation, intent type, and outcome",
		}, []string{"operation", "intent_type", "outcome"}),

		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "obconsent_state_transitions_total",
			Help: "Accepted consent state transitions by from and to status",
		}, []string{"from", "to"}),

		VersionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "obconsent_version_conflicts_total",
			Help: "Optimistic-concurrency conflicts hit by conditioned writes",
		}),

		IdempotentReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "obconsent_idempotent_replays_total",
			Help: "Create requests answered from the stored consent via the idempotency key",
		}),

		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "obconsent_operation_duration_seconds",
			Help:    "Duration of consent operations end to end",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

// IncrementOutcome records an operation result.
func (m *Metrics) IncrementOutcome(operation, intentType, outcome string) {
	if m != nil {
		m.OperationOutcome.WithLabelValues(operation, intentType, outcome).Inc()
	}
}

// IncrementTransition records an accepted state transition.
func (m *Metrics) IncrementTransition(from, to string) {
	if m != nil {
		m.StateTransitions.WithLabelValues(from, to).Inc()
	}
}

// IncrementVersionConflict records a lost conditioned write.
func (m *Metrics) IncrementVersionConflict() {
	if m != nil {
		m.VersionConflicts.Inc()
	}
}

// IncrementIdempotentReplay records a create served from the existing consent.
func (m *Metrics) IncrementIdempotentReplay() {
	if m != nil {
		m.IdempotentReplays.Inc()
	}
}

// ObserveOperationLatency records a full operation duration.
func (m *Metrics) ObserveOperationLatency(operation string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}
