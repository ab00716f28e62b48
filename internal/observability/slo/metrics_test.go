package slo

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"farm-notify/internal/domain/entity"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name   string
		counts map[entity.DeliveryStatus]int
		want   Snapshot
		met    bool
	}{
		{
			name:   "empty ledger",
			counts: map[entity.DeliveryStatus]int{},
			want:   Snapshot{SuccessRate: 1},
			met:    true,
		},
		{
			name:   "only queued",
			counts: map[entity.DeliveryStatus]int{entity.StatusQueued: 5},
			want:   Snapshot{SuccessRate: 1},
			met:    true,
		},
		{
			name: "healthy mix",
			counts: map[entity.DeliveryStatus]int{
				entity.StatusQueued:    10,
				entity.StatusSent:      40,
				entity.StatusDelivered: 59,
				entity.StatusFailed:    1,
			},
			want: Snapshot{Attempted: 100, SuccessRate: 0.99, BounceRate: 0},
			met:  true,
		},
		{
			name: "too many bounces",
			counts: map[entity.DeliveryStatus]int{
				entity.StatusDelivered:  45,
				entity.StatusBounced:    4,
				entity.StatusComplained: 1,
			},
			want: Snapshot{Attempted: 50, SuccessRate: 0.9, BounceRate: 0.1},
			met:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.counts)

			assert.Equal(t, tt.want.Attempted, got.Attempted)
			assert.InDelta(t, tt.want.SuccessRate, got.SuccessRate, 1e-9)
			assert.InDelta(t, tt.want.BounceRate, got.BounceRate, 1e-9)
			assert.Equal(t, tt.met, got.Met())
		})
	}
}

func TestUpdate_PublishesGauges(t *testing.T) {
	Update(map[entity.DeliveryStatus]int{
		entity.StatusDelivered: 3,
		entity.StatusFailed:    1,
	})

	assert.InDelta(t, 0.75, testutil.ToFloat64(SLODeliverySuccess), 1e-9)
	assert.Equal(t, 0.0, testutil.ToFloat64(SLOBounceRate))
	assert.Equal(t, 0.0, testutil.ToFloat64(SLOMet))

	Update(map[entity.DeliveryStatus]int{entity.StatusSent: 10})

	assert.Equal(t, 1.0, testutil.ToFloat64(SLOMet))
}
