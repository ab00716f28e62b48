// Package metrics holds the notifier's process-wide gauges: the ledger
// snapshot refreshed by the stats job and the database pool.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ledger snapshot, refreshed periodically from Ledger.Statistics.
var (
	// LedgerEntries is the number of ledger entries per status.
	LedgerEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delivery_ledger_entries",
			Help: "Number of delivery ledger entries by status",
		},
		[]string{"status"},
	)

	// LedgerPendingRetries counts failed entries still inside their retry budget.
	LedgerPendingRetries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_ledger_pending_retries",
			Help: "Number of failed delivery attempts waiting for a resend",
		},
	)

	// LedgerStatsRefreshed is the time of the last successful snapshot.
	LedgerStatsRefreshed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_ledger_stats_refreshed_timestamp",
			Help: "Unix timestamp of the last ledger statistics refresh",
		},
	)
)

// Database metrics, populated only with the postgres ledger backend.
var (
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Total number of failed database queries",
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of established database connections",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	DBWaitCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_wait_count",
			Help: "Cumulative number of connections waited for",
		},
	)
)
