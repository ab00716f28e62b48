package connection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// clientConnected is 1 while the live channel is open
	clientConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_client_connected",
			Help: "Whether the live channel client is currently open (1) or not (0)",
		},
	)

	// clientReconnectsTotal counts scheduled reconnect attempts
	clientReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_client_reconnects_total",
			Help: "Total number of reconnect attempts scheduled by the live channel client",
		},
	)

	// clientOfflineTotal counts sessions that hit the reconnect cap
	clientOfflineTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_client_offline_total",
			Help: "Total number of sessions that went offline after exhausting reconnect attempts",
		},
	)

	// listenerErrorsTotal counts listener errors and recovered panics
	listenerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_client_listener_errors_total",
			Help: "Total number of frame listener errors and panics",
		},
		[]string{"type", "kind"}, // kind: error|panic
	)

	// localNotificationsTotal counts synthesized local notifications
	localNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_client_local_notifications_total",
			Help: "Total number of local notifications synthesized from inbound frames",
		},
		[]string{"type"},
	)

	// feedDroppedTotal counts values a slow subscriber missed
	feedDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_client_feed_dropped_total",
			Help: "Total number of status or notification values dropped for slow subscribers",
		},
		[]string{"feed"},
	)
)
