package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserNotificationPreferences_Enabled(t *testing.T) {
	prefs := &UserNotificationPreferences{
		UserID: 1,
		Channels: map[Category]ChannelSet{
			CategoryBreedingReminder: {Push: true, Email: true},
			CategoryStockAlert:       {SMS: true},
		},
	}

	assert.True(t, prefs.Enabled(CategoryBreedingReminder, ChannelPush))
	assert.True(t, prefs.Enabled(CategoryBreedingReminder, ChannelEmail))
	assert.False(t, prefs.Enabled(CategoryBreedingReminder, ChannelSMS))
	assert.True(t, prefs.Enabled(CategoryStockAlert, ChannelSMS))
	// missing categories are opted out
	assert.False(t, prefs.Enabled(CategoryWeatherAlert, ChannelPush))

	var none *UserNotificationPreferences
	assert.False(t, none.Enabled(CategoryStockAlert, ChannelSMS))
	assert.False(t, none.HasPhone())
}

func TestUserNotificationPreferences_Validate(t *testing.T) {
	tests := []struct {
		name    string
		prefs   UserNotificationPreferences
		wantErr bool
	}{
		{"no contact data", UserNotificationPreferences{UserID: 1}, false},
		{"full contact data", UserNotificationPreferences{UserID: 1, Phone: "+254712345678", Email: "a@b.io", PushSubscriptions: 2}, false},
		{"bad phone", UserNotificationPreferences{UserID: 1, Phone: "0712"}, true},
		{"bad email", UserNotificationPreferences{UserID: 1, Email: "nope"}, true},
		{"missing user", UserNotificationPreferences{}, true},
		{"negative subscriptions", UserNotificationPreferences{UserID: 1, PushSubscriptions: -1}, true},
		{"unknown category", UserNotificationPreferences{UserID: 1, Channels: map[Category]ChannelSet{"gossip": {Push: true}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prefs.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNotificationEvent_Validate(t *testing.T) {
	ev := &NotificationEvent{Category: CategoryBreedingReminder, UserID: 5}
	assert.NoError(t, ev.Validate())
	assert.Equal(t, PriorityMedium, ev.Priority, "empty priority defaults to medium")

	assert.Error(t, (&NotificationEvent{Category: "party", UserID: 5}).Validate())
	assert.Error(t, (&NotificationEvent{Category: CategoryStockAlert}).Validate())
	assert.Error(t, (&NotificationEvent{Category: CategoryStockAlert, UserID: 5, Priority: "meh"}).Validate())
}
