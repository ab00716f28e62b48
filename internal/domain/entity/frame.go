package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameType discriminates live channel frames.
type FrameType string

const (
	FramePresenceOnline   FrameType = "presence_online"
	FramePresenceOffline  FrameType = "presence_offline"
	FrameTaskAssigned     FrameType = "task_assigned"
	FrameActivityApproved FrameType = "activity_approved"
	FrameUrgentAlert      FrameType = "urgent_alert"
	FrameWeatherAlert     FrameType = "weather_alert"
	FrameEquipmentAlert   FrameType = "equipment_alert"
	FrameNotification     FrameType = "notification"
	FrameHeartbeat        FrameType = "heartbeat"
)

// NotificationWorthy reports whether frames of type t are turned into local notifications.
func (t FrameType) NotificationWorthy() bool {
	switch t {
	case FrameTaskAssigned, FrameActivityApproved, FrameUrgentAlert, FrameWeatherAlert, FrameEquipmentAlert:
		return true
	}
	return false
}

// FramePayload is the sealed set of typed frame bodies.
type FramePayload interface {
	framePayload()
}

// PresencePayload announces a user's live state on a farm.
type PresencePayload struct {
	UserID int64 `json:"userId"`
	FarmID int64 `json:"farmId"`
}

// TaskAssignedPayload carries a task or shift assignment.
type TaskAssignedPayload struct {
	TaskID     int64      `json:"taskId"`
	Title      string     `json:"title"`
	AssignedBy string     `json:"assignedBy,omitempty"`
	DueAt      *time.Time `json:"dueAt,omitempty"`
}

// ActivityApprovedPayload reports a supervisor approval of a logged activity.
type ActivityApprovedPayload struct {
	ActivityID int64  `json:"activityId"`
	Activity   string `json:"activity"`
	ApprovedBy string `json:"approvedBy,omitempty"`
}

// AlertPayload is shared by urgent, weather and equipment alerts.
type AlertPayload struct {
	AlertID     string   `json:"alertId,omitempty"`
	Title       string   `json:"title,omitempty"`
	Message     string   `json:"message"`
	Severity    Priority `json:"severity,omitempty"`
	Location    string   `json:"location,omitempty"`
	EquipmentID string   `json:"equipmentId,omitempty"`
}

// NotificationPayload is a server push of a dispatched notification.
type NotificationPayload struct {
	MessageID string   `json:"messageId"`
	Category  Category `json:"category"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Priority  Priority `json:"priority"`
}

// HeartbeatPayload is an application level keepalive.
type HeartbeatPayload struct{}

// RawPayload keeps the body of frame types this build does not know.
type RawPayload json.RawMessage

func (PresencePayload) framePayload()         {}
func (TaskAssignedPayload) framePayload()     {}
func (ActivityApprovedPayload) framePayload() {}
func (AlertPayload) framePayload()            {}
func (NotificationPayload) framePayload()     {}
func (HeartbeatPayload) framePayload()        {}
func (RawPayload) framePayload()              {}

// Frame is one live channel message.
type Frame struct {
	Type      FrameType
	Payload   FramePayload
	Timestamp time.Time
	UserID    *int64
	FarmID    *int64
}

type wireFrame struct {
	Type      FrameType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
	UserID    *int64          `json:"userId,omitempty"`
	FarmID    *int64          `json:"farmId,omitempty"`
}

// NewPresenceFrame builds the frame a client sends right after the transport opens.
func NewPresenceFrame(userID, farmID int64, now time.Time) Frame {
	return Frame{
		Type:      FramePresenceOnline,
		Payload:   PresencePayload{UserID: userID, FarmID: farmID},
		Timestamp: now,
	}
}

// MarshalJSON encodes the frame in its wire shape with an ISO-8601 timestamp.
func (f Frame) MarshalJSON() ([]byte, error) {
	var data []byte
	switch p := f.Payload.(type) {
	case nil:
		data = []byte("{}")
	case RawPayload:
		data = []byte(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", f.Type, err)
		}
		data = b
	}
	return json.Marshal(wireFrame{
		Type:      f.Type,
		Data:      data,
		Timestamp: f.Timestamp.UTC().Format(time.RFC3339Nano),
		UserID:    f.UserID,
		FarmID:    f.FarmID,
	})
}

// UnmarshalJSON decodes the wire shape and the typed payload for f.Type.
func (f *Frame) UnmarshalJSON(b []byte) error {
	var w wireFrame
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Type == "" {
		return &ValidationError{Field: "type", Message: "frame type is required"}
	}
	payload, err := decodePayload(w.Type, w.Data)
	if err != nil {
		return err
	}
	f.Type = w.Type
	f.Payload = payload
	f.UserID = w.UserID
	f.FarmID = w.FarmID
	f.Timestamp = time.Time{}
	if w.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return &ValidationError{Field: "timestamp", Message: "must be ISO-8601"}
		}
		f.Timestamp = ts
	}
	return nil
}

func decodePayload(t FrameType, data json.RawMessage) (FramePayload, error) {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	var (
		payload FramePayload
		err     error
	)
	switch t {
	case FramePresenceOnline, FramePresenceOffline:
		var p PresencePayload
		err = json.Unmarshal(data, &p)
		payload = p
	case FrameTaskAssigned:
		var p TaskAssignedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case FrameActivityApproved:
		var p ActivityApprovedPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case FrameUrgentAlert, FrameWeatherAlert, FrameEquipmentAlert:
		var p AlertPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case FrameNotification:
		var p NotificationPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case FrameHeartbeat:
		payload = HeartbeatPayload{}
	default:
		payload = RawPayload(append([]byte(nil), data...))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return payload, nil
}

// LocalNotification is the record handed to the UI layer for a notification-worthy frame.
type LocalNotification struct {
	ID        string    `json:"id"`
	Type      FrameType `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	UserID    *int64    `json:"userId,omitempty"`
	FarmID    *int64    `json:"farmId,omitempty"`
	Priority  Priority  `json:"priority"`
	Read      bool      `json:"read"`
	Timestamp time.Time `json:"timestamp"`
}
