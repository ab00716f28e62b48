package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// webhookEventsTotal counts processed gateway callbacks by outcome
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of gateway webhook events by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// retryPending tracks entries waiting in the retry scheduler
	retryPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "retry_scheduler_pending",
			Help: "Number of delivery retries waiting for their due time",
		},
	)

	// retryFiredTotal counts retries handed to the resend handler
	retryFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_scheduler_fired_total",
			Help: "Total number of due retries handed to the resend handler",
		},
		[]string{"result"}, // result: success|error
	)

	// retryLag measures how late a retry fired relative to its due time
	retryLag = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retry_scheduler_lag_seconds",
			Help:    "Delay between a retry's due time and the moment it fired",
			Buckets: []float64{.001, .01, .1, .5, 1, 5, 30},
		},
	)
)
