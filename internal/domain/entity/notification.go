package entity

import (
	"strings"
	"time"
)

// Category identifies the kind of domain event that triggers a notification.
type Category string

const (
	CategoryBreedingReminder    Category = "breeding_reminder"
	CategoryStockAlert          Category = "stock_alert"
	CategoryWeatherAlert        Category = "weather_alert"
	CategoryVaccinationReminder Category = "vaccination_reminder"
	CategoryHarvestReminder     Category = "harvest_reminder"
	CategoryMarketplaceOrder    Category = "marketplace_order"
	CategoryTaskChange          Category = "task_change"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryBreedingReminder,
	CategoryStockAlert,
	CategoryWeatherAlert,
	CategoryVaccinationReminder,
	CategoryHarvestReminder,
	CategoryMarketplaceOrder,
	CategoryTaskChange,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Priority expresses how urgently a notification should reach the user.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// NotificationEvent is a domain trigger raised by the farm application.
// The delivery subsystem never mutates it.
type NotificationEvent struct {
	ID         string            `json:"id"`
	Category   Category          `json:"category"`
	UserID     int64             `json:"userId"`
	FarmID     int64             `json:"farmId"`
	Priority   Priority          `json:"priority"`
	Payload    map[string]string `json:"payload,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Validate checks the fields required for dispatch.
// An empty priority defaults to medium.
func (e *NotificationEvent) Validate() error {
	if !e.Category.Valid() {
		return &ValidationError{Field: "category", Message: "invalid category " + string(e.Category)}
	}
	if e.UserID <= 0 {
		return &ValidationError{Field: "userId", Message: "must be positive"}
	}
	if e.Priority == "" {
		e.Priority = PriorityMedium
	}
	if !e.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "invalid priority " + string(e.Priority)}
	}
	if len(strings.TrimSpace(e.ID)) > 128 {
		return &ValidationError{Field: "id", Message: "must be 128 characters or fewer"}
	}
	return nil
}
