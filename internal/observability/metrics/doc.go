// Ledger and database gauges are exposed on the ops listener's /metrics
// together with the per-package collectors (notification_*, live_*,
// delivery_ledger_*, http_*).
//
//	stats, _ := ledger.Statistics(ctx)
//	metrics.UpdateLedgerEntries(stats, len(pending))
//
//	repo := postgres.NewDeliveryAttemptRepo(metrics.NewTimedDB(db))
package metrics
