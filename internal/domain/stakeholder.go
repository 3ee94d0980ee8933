package domain

// ChannelType identifies an outbound notification channel.
type ChannelType string

// Channel types.
const (
	ChannelTypeEmail   ChannelType = "email"
	ChannelTypeSlack   ChannelType = "slack"
	ChannelTypeTeams   ChannelType = "teams"
	ChannelTypeSMS     ChannelType = "sms"
	ChannelTypeWebhook ChannelType = "webhook"
)

// Escalation level bounds.
const (
	MinEscalationLevel = 1
	MaxEscalationLevel = 5
)

// Stakeholder is a tracked recipient with channel preferences.
type Stakeholder struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name" validate:"required"`
	Email                string        `json:"email" validate:"omitempty,email"`
	Phone                string        `json:"phone,omitempty"`
	Role                 string        `json:"role"`
	NotificationChannels []ChannelType `json:"notification_channels"`
	EscalationLevel      int           `json:"escalation_level" validate:"min=1,max=5"`
	IsActive             bool          `json:"is_active"`
}

// PrefersChannel reports whether the stakeholder opted into the channel.
func (s Stakeholder) PrefersChannel(channel ChannelType) bool {
	for _, c := range s.NotificationChannels {
		if c == channel {
			return true
		}
	}
	return false
}

// Recipient converts the stakeholder into a communication recipient.
func (s Stakeholder) Recipient() Recipient {
	return Recipient{
		StakeholderID: s.ID,
		Name:          s.Name,
		Email:         s.Email,
		Phone:         s.Phone,
		Role:          s.Role,
	}
}

// StakeholderProfile is the scoring profile used to rate event relevance.
type StakeholderProfile struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Industry string   `json:"industry"`
	Regions  []string `json:"regions"`
	Keywords []string `json:"keywords"`
}
