package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"farm-notify/internal/config"
	"farm-notify/internal/infra/opsalert"
	"farm-notify/internal/infra/worker"
	"farm-notify/internal/observability/metrics"
	"farm-notify/internal/observability/slo"
)

const statsSchedule = "@every 1m"

// jobs returns the periodic maintenance work.
func (a *app) jobs(cfg *config.Config, st *store) []worker.Job {
	return []worker.Job{
		{
			Name:     "ledger_sweep",
			Schedule: cfg.Ledger.SweepSchedule,
			Timeout:  10 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := a.ledger.Sweep(ctx, cfg.Ledger.SweepRetention)
				return err
			},
		},
		{
			Name:     "ledger_stats",
			Schedule: statsSchedule,
			Timeout:  30 * time.Second,
			Run: func(ctx context.Context) error {
				return a.refreshStats(ctx, st)
			},
		},
	}
}

// refreshStats publishes the ledger snapshot, the delivery objectives and
// the database pool gauges.
func (a *app) refreshStats(ctx context.Context, st *store) error {
	counts, err := a.ledger.Statistics(ctx)
	if err != nil {
		return err
	}
	pending, err := a.ledger.PendingRetries(ctx)
	if err != nil {
		return err
	}
	metrics.UpdateLedgerEntries(counts, len(pending))
	a.checkObjectives(ctx, slo.Update(counts))
	if st.sqlDB != nil {
		metrics.UpdateDBStats(st.sqlDB.Stats())
	}
	return nil
}

// checkObjectives alerts on the transition into and out of a breach.
// Alert failures are logged, never returned, so the stats job still reports
// success.
func (a *app) checkObjectives(ctx context.Context, snap slo.Snapshot) {
	met := snap.Met()
	if !met {
		a.logger.Warn("delivery objectives not met",
			slog.Int("attempted", snap.Attempted),
			slog.Float64("success_rate", snap.SuccessRate),
			slog.Float64("bounce_rate", snap.BounceRate))
	}
	if a.objectivesBreached.Swap(!met) == !met {
		return
	}

	alert := opsalert.Alert{
		Title:    "Delivery objectives breached",
		Text:     fmt.Sprintf("Success rate is below %.0f%% or bounce rate above %.0f%%.", slo.DeliverySuccessSLO*100, slo.BounceRateSLO*100),
		Severity: opsalert.SeverityWarning,
		Fields: []opsalert.Field{
			{Label: "Success rate", Value: fmt.Sprintf("%.1f%%", snap.SuccessRate*100)},
			{Label: "Bounce rate", Value: fmt.Sprintf("%.1f%%", snap.BounceRate*100)},
			{Label: "Attempted", Value: fmt.Sprintf("%d", snap.Attempted)},
		},
		At: time.Now(),
	}
	if met {
		alert.Title = "Delivery objectives recovered"
		alert.Text = "Success and bounce rates are back within objectives."
		alert.Severity = opsalert.SeverityResolved
	}
	if err := a.alerter.Alert(ctx, alert); err != nil {
		a.logger.Warn("ops alert failed", slog.String("title", alert.Title), slog.Any("error", err))
	}
}
