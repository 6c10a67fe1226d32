// Package telemetry wires structured logging, tracing, and metrics for the
// whole service. This file holds domain-specific collectors; registry.go
// holds the shared HTTP metric and registry constructor.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// CreditsDebitedTotal counts successful credit debits.
var CreditsDebitedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "narrator",
		Subsystem: "ledger",
		Name:      "credits_debited_total",
		Help:      "Total number of credits debited across all users.",
	},
)

// CreditsRefundedTotal counts credits restored by refund_by_job.
var CreditsRefundedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "narrator",
		Subsystem: "ledger",
		Name:      "credits_refunded_total",
		Help:      "Total number of credits restored by refunds.",
	},
)

// InsufficientCreditsTotal counts rejected debits due to low balance.
var InsufficientCreditsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "narrator",
		Subsystem: "ledger",
		Name:      "insufficient_credits_total",
		Help:      "Total number of debits rejected for insufficient balance.",
	},
)

// LedgerReconciliationMismatchTotal counts cache/active-balance mismatches
// detected by summary(), per spec.md §4.2.
var LedgerReconciliationMismatchTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "narrator",
		Subsystem: "ledger",
		Name:      "reconciliation_mismatch_total",
		Help:      "Total number of cached-vs-active balance mismatches reconciled.",
	},
)

// SlotPoolOccupancy reports current voices in {allocating,ready,cooling} per provider.
var SlotPoolOccupancy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "narrator",
		Subsystem: "slots",
		Name:      "pool_occupancy",
		Help:      "Current number of voices occupying a remote slot, by provider.",
	},
	[]string{"provider"},
)

// SlotQueueDepth reports the current waiting-queue length per provider.
var SlotQueueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "narrator",
		Subsystem: "slots",
		Name:      "queue_depth",
		Help:      "Current number of voices waiting for a remote slot, by provider.",
	},
	[]string{"provider"},
)

// SlotEvictionsTotal counts voices evicted from the remote slot pool.
var SlotEvictionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "narrator",
		Subsystem: "slots",
		Name:      "evictions_total",
		Help:      "Total number of voices evicted from the remote slot pool.",
	},
	[]string{"provider"},
)

// SlotDriftRepairsTotal counts remote-voice-missing recoveries.
var SlotDriftRepairsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "narrator",
		Subsystem: "slots",
		Name:      "drift_repairs_total",
		Help:      "Total number of drift repairs (remote voice missing) by provider.",
	},
	[]string{"provider"},
)

// WorkerTaskOutcomeTotal counts worker task completions by task type and outcome.
var WorkerTaskOutcomeTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "narrator",
		Subsystem: "worker",
		Name:      "task_outcome_total",
		Help:      "Total number of worker tasks completed, by task type and outcome.",
	},
	[]string{"task", "outcome"},
)

// SynthesisJobsTotal counts synthesis jobs by terminal status.
var SynthesisJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "narrator",
		Subsystem: "synthesis",
		Name:      "jobs_total",
		Help:      "Total number of synthesis jobs by terminal status.",
	},
	[]string{"status"},
)

// All returns every narrator-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		CreditsDebitedTotal,
		CreditsRefundedTotal,
		InsufficientCreditsTotal,
		LedgerReconciliationMismatchTotal,
		SlotPoolOccupancy,
		SlotQueueDepth,
		SlotEvictionsTotal,
		SlotDriftRepairsTotal,
		WorkerTaskOutcomeTotal,
		SynthesisJobsTotal,
	}
}
