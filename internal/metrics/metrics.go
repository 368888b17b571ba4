package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_mutations_total",
			Help: "Committed ledger units by outcome",
		},
		[]string{"outcome"},
	)

	LedgerConflictRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_conflict_retries_total",
			Help: "Optimistic commits retried after a concurrent write",
		},
	)

	ClampedDebitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_clamped_debits_total",
			Help: "Debits clamped at a zero balance",
		},
		[]string{"credit_type"},
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_processed_total",
			Help: "Payment notifications by outcome",
		},
		[]string{"outcome"},
	)

	CommissionPayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_payouts_total",
			Help: "Referral commission decisions by level and outcome",
		},
		[]string{"level", "outcome"},
	)

	CommissionCreditsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "commission_credits_total",
			Help: "Promotional credits paid out as referral commission",
		},
	)

	SweepItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_items_total",
			Help: "Items handled by the scheduled sweeps",
		},
		[]string{"sweep", "outcome"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of sweep runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)
)
