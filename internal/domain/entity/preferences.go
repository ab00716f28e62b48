package entity

// Channel is one delivery medium.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Channels lists the channels in dispatch order.
var Channels = []Channel{ChannelPush, ChannelSMS, ChannelEmail}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelPush || c == ChannelSMS || c == ChannelEmail
}

// ChannelSet holds the per-channel enablement for one category.
type ChannelSet struct {
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
	Email bool `json:"email"`
}

// Has reports whether ch is enabled in the set.
func (s ChannelSet) Has(ch Channel) bool {
	switch ch {
	case ChannelPush:
		return s.Push
	case ChannelSMS:
		return s.SMS
	case ChannelEmail:
		return s.Email
	}
	return false
}

// UserNotificationPreferences is the user's opt-in matrix plus contact availability.
type UserNotificationPreferences struct {
	UserID            int64                   `json:"userId"`
	Channels          map[Category]ChannelSet `json:"channels"`
	Phone             string                  `json:"phone,omitempty"`
	Email             string                  `json:"email,omitempty"`
	PushSubscriptions int                     `json:"pushSubscriptions"`
}

// Enabled reports whether the user opted into category on ch.
// Categories missing from the matrix are disabled.
func (p *UserNotificationPreferences) Enabled(category Category, ch Channel) bool {
	if p == nil {
		return false
	}
	set, ok := p.Channels[category]
	if !ok {
		return false
	}
	return set.Has(ch)
}

func (p *UserNotificationPreferences) HasPhone() bool {
	return p != nil && p.Phone != ""
}

func (p *UserNotificationPreferences) HasEmail() bool {
	return p != nil && p.Email != ""
}

func (p *UserNotificationPreferences) HasPushSubscriptions() bool {
	return p != nil && p.PushSubscriptions > 0
}

// Recipient returns the addressing data the channel providers need.
func (p *UserNotificationPreferences) Recipient() Recipient {
	return Recipient{UserID: p.UserID, Phone: p.Phone, Email: p.Email}
}

// Validate checks contact data formats. Empty contact fields are allowed.
func (p *UserNotificationPreferences) Validate() error {
	if p.UserID <= 0 {
		return &ValidationError{Field: "userId", Message: "must be positive"}
	}
	if p.Phone != "" {
		if err := ValidatePhone(p.Phone); err != nil {
			return err
		}
	}
	if p.Email != "" {
		if err := ValidateEmail(p.Email); err != nil {
			return err
		}
	}
	if p.PushSubscriptions < 0 {
		return &ValidationError{Field: "pushSubscriptions", Message: "cannot be negative"}
	}
	for category := range p.Channels {
		if !category.Valid() {
			return &ValidationError{Field: "channels", Message: "invalid category " + string(category)}
		}
	}
	return nil
}

// Recipient identifies where a channel provider should deliver.
type Recipient struct {
	UserID int64  `json:"userId"`
	Phone  string `json:"phone,omitempty"`
	Email  string `json:"email,omitempty"`
}
