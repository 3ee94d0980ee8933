package domain

import (
	"strings"
	"time"
)

// CommunicationType describes the purpose of an outbound communication.
type CommunicationType string

// Communication types.
const (
	CommunicationTypeInitialAlert CommunicationType = "initial_alert"
	CommunicationTypeUpdate       CommunicationType = "update"
	CommunicationTypeEscalation   CommunicationType = "escalation"
	CommunicationTypeResolution   CommunicationType = "resolution"
	CommunicationTypeCustom       CommunicationType = "custom"
)

// IsValid checks if the communication type is valid.
func (t CommunicationType) IsValid() bool {
	switch t {
	case CommunicationTypeInitialAlert, CommunicationTypeUpdate,
		CommunicationTypeEscalation, CommunicationTypeResolution,
		CommunicationTypeCustom:
		return true
	}
	return false
}

// RequiresAcknowledgement reports whether silence after this type of
// communication counts towards no-response escalation.
func (t CommunicationType) RequiresAcknowledgement() bool {
	return t == CommunicationTypeInitialAlert || t == CommunicationTypeEscalation
}

// DeliveryStatus is the delivery outcome of a communication.
// It moves from pending to sent or failed exactly once.
type DeliveryStatus string

// Delivery statuses.
const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// Recipient is one addressee of a communication.
type Recipient struct {
	StakeholderID string `json:"stakeholder_id,omitempty"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	Role          string `json:"role"`
}

// Communication is one outbound message sent through one channel.
type Communication struct {
	ID               string            `json:"id"`
	Type             CommunicationType `json:"type"`
	Channel          ChannelType       `json:"channel"`
	Recipients       []Recipient       `json:"recipients"`
	Subject          string            `json:"subject"`
	Content          string            `json:"content"`
	SentAt           time.Time         `json:"sent_at"`
	SentBy           string            `json:"sent_by"`
	DeliveryStatus   DeliveryStatus    `json:"delivery_status"`
	ProviderRef      string            `json:"provider_ref,omitempty"`
	DeliveryError    string            `json:"delivery_error,omitempty"`
	ResponseReceived bool              `json:"response_received"`
	ResponseContent  string            `json:"response_content,omitempty"`
	ResponseAt       *time.Time        `json:"response_at,omitempty"`
}

// IsSuccessful reports whether the communication reached its provider.
func (c Communication) IsSuccessful() bool {
	return c.DeliveryStatus == DeliveryStatusSent
}

// AddressedTo reports whether the stakeholder is among the recipients.
// Recipients carrying a stakeholder id are matched by id only; recipients
// without one fall back to a case-insensitive email match.
func (c Communication) AddressedTo(s Stakeholder) bool {
	for _, r := range c.Recipients {
		if r.StakeholderID != "" {
			if r.StakeholderID == s.ID {
				return true
			}
			continue
		}
		if s.Email != "" && strings.EqualFold(r.Email, s.Email) {
			return true
		}
	}
	return false
}
