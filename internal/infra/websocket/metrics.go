package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	liveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_connections_active",
			Help: "Number of open live channel connections",
		},
	)

	liveFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_frames_total",
			Help: "Live channel frames by direction and type",
		},
		[]string{"direction", "type"}, // direction: in|out
	)

	liveWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_write_failures_total",
			Help: "Failed writes to live channel connections",
		},
	)
)
