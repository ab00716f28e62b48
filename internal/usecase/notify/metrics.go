package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for notification dispatch
var (
	// notificationDispatchedTotal tracks sends started per channel
	notificationDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatched_total",
			Help: "Total number of channel sends started",
		},
		[]string{"channel", "kind"}, // kind: first|retry
	)

	// notificationSentTotal tracks send results per channel
	notificationSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_sent_total",
			Help: "Total number of channel sends by result",
		},
		[]string{"channel", "status"}, // status: success|failure
	)

	// notificationDuration tracks send duration
	notificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_duration_seconds",
			Help:    "Channel send duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30},
		},
		[]string{"channel"},
	)

	// notificationSkippedTotal tracks channels skipped before any send
	notificationSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_skipped_total",
			Help: "Total number of channels skipped during dispatch",
		},
		[]string{"channel", "reason"}, // reason: opted_out|no_contact|not_configured|duplicate
	)

	// circuitBreakerOpenTotal tracks sends rejected by an open breaker
	circuitBreakerOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_circuit_breaker_open_total",
			Help: "Total number of sends rejected by an open circuit breaker",
		},
		[]string{"channel"},
	)

	// notificationDroppedTotal tracks sends dropped on pool saturation
	notificationDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dropped_total",
			Help: "Total number of dropped sends",
		},
		[]string{"channel", "reason"},
	)

	// activeSends tracks in-flight channel sends
	activeSends = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_active_sends",
			Help: "Number of in-flight channel sends",
		},
	)

	// channelsConfigured tracks configured providers
	channelsConfigured = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_channels_configured",
			Help: "Number of configured channel providers",
		},
	)
)

// RecordDispatch records a send about to start. kind is first or retry.
func RecordDispatch(channel, kind string) {
	notificationDispatchedTotal.WithLabelValues(channel, kind).Inc()
}

// RecordSuccess records a successful send and its duration.
func RecordSuccess(channel string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(channel, "success").Inc()
	notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordFailure records a failed send and its duration.
func RecordFailure(channel string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(channel, "failure").Inc()
	notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordSkipped records a channel skipped before sending.
func RecordSkipped(channel, reason string) {
	notificationSkippedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordDropped records a send dropped for reason.
func RecordDropped(channel, reason string) {
	notificationDroppedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordCircuitBreakerOpen records a send rejected by an open breaker.
func RecordCircuitBreakerOpen(channel string) {
	circuitBreakerOpenTotal.WithLabelValues(channel).Inc()
}

// SetChannelsConfigured sets the number of configured providers.
func SetChannelsConfigured(count float64) {
	channelsConfigured.Set(count)
}
