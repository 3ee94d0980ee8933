// Package notifications provides the multi-channel dispatcher and the
// contract implemented by channel senders.
package notifications

import (
	"context"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
)

// Message is the channel-independent form of a communication.
type Message struct {
	CommunicationID string
	RoomID          string
	Type            domain.CommunicationType
	Channel         domain.ChannelType
	Recipients      []domain.Recipient
	Subject         string
	Content         string
	Severity        domain.Severity
	SentAt          time.Time
	Attachments     []Attachment
}

// Attachment is a file attached to an email message.
type Attachment struct {
	Filename string
	Data     []byte
}

// Sender delivers a message through one channel.
// Send returns a provider reference on success.
type Sender interface {
	Type() domain.ChannelType
	Send(ctx context.Context, msg Message) (providerRef string, err error)
}

// DeliveryResult is the outcome of dispatching one message.
type DeliveryResult struct {
	Status      domain.DeliveryStatus
	ProviderRef string
	Err         error
}

// ErrorString returns the diagnostic for the result, or "".
func (r DeliveryResult) ErrorString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// EmailAddresses returns the non-empty email addresses of recipients.
func (m Message) EmailAddresses() []string {
	addrs := make([]string, 0, len(m.Recipients))
	for _, r := range m.Recipients {
		if r.Email != "" {
			addrs = append(addrs, r.Email)
		}
	}
	return addrs
}
