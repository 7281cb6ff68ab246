package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the accounting core. Reconciliation corrections are expected
// during normal operation (missed events, processor restarts) and are tracked
// here instead of being reported as errors.
var (
	ReconcileCorrections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metering_reconcile_corrections_total",
		Help: "Quota usage corrections applied by the reconciliation job",
	}, []string{"scope_type", "resource_type"})

	ReconcileDrift = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metering_reconcile_drift_magnitude",
		Help: "Accumulated absolute drift corrected by the reconciliation job",
	}, []string{"scope_type", "resource_type"})

	SampleFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metering_sample_fetch_failures_total",
		Help: "Per-resource sample fetches that failed and degraded to zero-filled data",
	})

	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metering_lifecycle_events_applied_total",
		Help: "Lifecycle events applied to the quota ledger",
	}, []string{"transition"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metering_lifecycle_events_rejected_total",
		Help: "Lifecycle events rejected before application",
	}, []string{"reason"})
)
