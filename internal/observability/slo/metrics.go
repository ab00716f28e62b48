// Package slo tracks the notifier's delivery objectives against the ledger.
package slo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"farm-notify/internal/domain/entity"
)

// Delivery objectives.
const (
	// DeliverySuccessSLO is the minimum share of attempted deliveries that
	// reach sent or delivered.
	DeliverySuccessSLO = 0.98

	// BounceRateSLO is the maximum share of attempted deliveries that bounce
	// or draw a complaint.
	BounceRateSLO = 0.02
)

var (
	SLODeliverySuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_delivery_success_ratio",
			Help: "Share of attempted deliveries that were sent or delivered (0-1), target: 0.98",
		},
	)

	SLOBounceRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_delivery_bounce_ratio",
			Help: "Share of attempted deliveries that bounced or drew a complaint (0-1), target: 0.02",
		},
	)

	SLOMet = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_delivery_objectives_met",
			Help: "1 if every delivery objective is met, 0 otherwise",
		},
	)
)

// Snapshot is the objective view of one ledger statistics read.
type Snapshot struct {
	Attempted   int
	SuccessRate float64
	BounceRate  float64
}

// Met reports whether both objectives hold. An empty ledger meets them.
func (s Snapshot) Met() bool {
	return s.SuccessRate >= DeliverySuccessSLO && s.BounceRate <= BounceRateSLO
}

// Compute derives the ratios from per-status counts. Queued entries have not
// been attempted yet and are left out.
func Compute(counts map[entity.DeliveryStatus]int) Snapshot {
	total := 0
	for _, n := range counts {
		total += n
	}
	attempted := total - counts[entity.StatusQueued]
	if attempted <= 0 {
		return Snapshot{SuccessRate: 1}
	}
	ok := counts[entity.StatusSent] + counts[entity.StatusDelivered]
	bounced := counts[entity.StatusBounced] + counts[entity.StatusComplained]
	return Snapshot{
		Attempted:   attempted,
		SuccessRate: float64(ok) / float64(attempted),
		BounceRate:  float64(bounced) / float64(attempted),
	}
}

// Update computes the snapshot, publishes it and returns it.
func Update(counts map[entity.DeliveryStatus]int) Snapshot {
	s := Compute(counts)
	SLODeliverySuccess.Set(s.SuccessRate)
	SLOBounceRate.Set(s.BounceRate)
	if s.Met() {
		SLOMet.Set(1)
	} else {
		SLOMet.Set(0)
	}
	return s
}
