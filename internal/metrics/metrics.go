// Package metrics holds the Prometheus instrumentation for fieldsync.
//
// Collectors are registered on the default registry at init, so the watch
// command can expose them with promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes used as label values.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeSkipped    = "skipped"
	OutcomeDispatched = "dispatched"
	OutcomeSuppressed = "suppressed"
	OutcomeUnmapped   = "unmapped"
	OutcomeInvalid    = "invalid"
)

var (
	// Reconciliation Metrics
	ReconcileActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_reconcile_actions_total",
			Help: "CRM writes issued by Content to CRM reconciliation",
		},
		[]string{"kind", "action", "outcome"},
	)

	ReconcilePasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_reconcile_passes_total",
			Help: "Reconciliation passes by kind and result (touched, untouched, aborted)",
		},
		[]string{"kind", "result"},
	)

	// Event Metrics
	EventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_events_total",
			Help: "CRM notifications by kind, operation and outcome",
		},
		[]string{"kind", "op", "outcome"},
	)

	FieldWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_field_writes_total",
			Help: "Content field values written, by direction",
		},
		[]string{"kind", "direction"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldsync_crm_circuit_breaker_state",
			Help: "CRM circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_crm_circuit_breaker_transitions_total",
			Help: "CRM circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	CRMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_crm_requests_total",
			Help: "CRM API requests by operation and result",
		},
		[]string{"operation", "result"},
	)
)
