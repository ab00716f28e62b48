package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ledgerTransitionsTotal counts applied status changes
	ledgerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_ledger_transitions_total",
			Help: "Total number of delivery status transitions applied to the ledger",
		},
		[]string{"channel", "from", "to"},
	)

	// ledgerRejectedTotal counts reports that the state machine ignored
	ledgerRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_ledger_rejected_total",
			Help: "Total number of status reports ignored by the ledger",
		},
		[]string{"reason"}, // reason: unknown|invalid_transition
	)

	// ledgerRetriesTotal counts retry decisions
	ledgerRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_ledger_retries_total",
			Help: "Total number of retry decisions taken by the ledger",
		},
		[]string{"channel", "decision"}, // decision: scheduled|exhausted
	)

	// ledgerSweptTotal counts terminal entries removed by the sweep
	ledgerSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_ledger_swept_total",
			Help: "Total number of terminal ledger entries removed by the sweep",
		},
	)
)
