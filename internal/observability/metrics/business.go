package metrics

import (
	"database/sql"
	"time"

	"farm-notify/internal/domain/entity"
)

// UpdateLedgerEntries publishes a Ledger.Statistics snapshot. Statuses
// missing from counts are reported as zero.
func UpdateLedgerEntries(counts map[entity.DeliveryStatus]int, pendingRetries int) {
	for _, s := range entity.Statuses {
		LedgerEntries.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
	LedgerPendingRetries.Set(float64(pendingRetries))
	LedgerStatsRefreshed.SetToCurrentTime()
}

// RecordDBQuery records one query. Operation is the SQL verb in lower case.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// UpdateDBStats copies the pool statistics of a *sql.DB.
func UpdateDBStats(stats sql.DBStats) {
	DBConnectionsOpen.Set(float64(stats.OpenConnections))
	DBConnectionsInUse.Set(float64(stats.InUse))
	DBConnectionsIdle.Set(float64(stats.Idle))
	DBWaitCount.Set(float64(stats.WaitCount))
}
