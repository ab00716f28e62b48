package connection

import (
	"time"

	"github.com/google/uuid"

	"farm-notify/internal/domain/entity"
)

// synthesize builds the local notification for a notification-worthy frame.
// Target ids fall back to the session's when the frame carries none.
func synthesize(f entity.Frame, sess entity.Session, now time.Time) entity.LocalNotification {
	n := entity.LocalNotification{
		ID:        uuid.NewString(),
		Type:      f.Type,
		Priority:  entity.PriorityMedium,
		UserID:    f.UserID,
		FarmID:    f.FarmID,
		Timestamp: f.Timestamp,
	}
	if n.UserID == nil {
		uid := sess.UserID
		n.UserID = &uid
	}
	if n.FarmID == nil {
		fid := sess.FarmID
		n.FarmID = &fid
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = now
	}

	switch p := f.Payload.(type) {
	case entity.TaskAssignedPayload:
		n.Title = "New task assigned"
		n.Message = p.Title
		if p.AssignedBy != "" {
			n.Message += " (assigned by " + p.AssignedBy + ")"
		}
		if p.DueAt != nil {
			n.Message += ", due " + p.DueAt.Format("2 Jan 15:04")
		}
	case entity.ActivityApprovedPayload:
		n.Title = "Activity approved"
		n.Message = p.Activity + " was approved"
		if p.ApprovedBy != "" {
			n.Message += " by " + p.ApprovedBy
		}
		n.Priority = entity.PriorityLow
	case entity.AlertPayload:
		n.Title = p.Title
		n.Message = p.Message
		n.Priority = alertPriority(f.Type, p.Severity)
		if n.Title == "" {
			n.Title = alertTitles[f.Type]
		}
		if p.Location != "" {
			n.Message += " (" + p.Location + ")"
		}
	}
	return n
}

var alertTitles = map[entity.FrameType]string{
	entity.FrameUrgentAlert:    "Urgent alert",
	entity.FrameWeatherAlert:   "Weather alert",
	entity.FrameEquipmentAlert: "Equipment alert",
}

func alertPriority(t entity.FrameType, severity entity.Priority) entity.Priority {
	if severity.Valid() {
		return severity
	}
	if t == entity.FrameUrgentAlert {
		return entity.PriorityUrgent
	}
	return entity.PriorityHigh
}
