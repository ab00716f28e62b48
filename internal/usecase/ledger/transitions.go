package ledger

import "farm-notify/internal/domain/entity"

// transitions lists the status edges a gateway report may take.
// failed -> sent happens only through MarkResent, and terminal states have no edges.
var transitions = map[entity.DeliveryStatus]map[entity.DeliveryStatus]bool{
	entity.StatusQueued: {
		entity.StatusSent:   true,
		entity.StatusFailed: true,
	},
	entity.StatusSent: {
		entity.StatusDelivered:  true,
		entity.StatusBounced:    true,
		entity.StatusComplained: true,
		entity.StatusFailed:     true,
	},
}

// canTransition reports whether a reported status may be applied to a.
func canTransition(a *entity.DeliveryAttempt, to entity.DeliveryStatus) bool {
	if a.Terminal() || a.RetryPending() {
		return false
	}
	return transitions[a.Status][to]
}
