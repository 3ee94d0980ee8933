// Package webhook posts communications as JSON to a generic HTTP endpoint.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/notifications"
	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 10 * time.Second

// Config holds webhook sender configuration.
type Config struct {
	URL     string
	Token   string // sent as a bearer token when set
	Timeout time.Duration
}

// Sender implements the generic webhook channel.
type Sender struct {
	config Config
	client *resty.Client
}

// Payload is the JSON body posted to the endpoint.
type Payload struct {
	CommunicationID string                   `json:"communication_id"`
	RoomID          string                   `json:"room_id"`
	Type            domain.CommunicationType `json:"type"`
	Severity        domain.Severity          `json:"severity,omitempty"`
	Subject         string                   `json:"subject"`
	Content         string                   `json:"content"`
	Recipients      []domain.Recipient       `json:"recipients"`
	Timestamp       time.Time                `json:"timestamp"`
}

type ackResponse struct {
	ID string `json:"id"`
}

// NewSender creates a new webhook sender.
func NewSender(config Config) (*Sender, error) {
	if config.URL == "" {
		return nil, errors.New("webhook sender: URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	client := resty.New().
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "crisis-room-webhook/1")
	if config.Token != "" {
		client.SetAuthToken(config.Token)
	}

	return &Sender{config: config, client: client}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeWebhook
}

// Send posts the message. The provider reference is the "id" field of a
// JSON response body, falling back to the X-Request-Id header.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) (string, error) {
	timestamp := msg.SentAt
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(Payload{
			CommunicationID: msg.CommunicationID,
			RoomID:          msg.RoomID,
			Type:            msg.Type,
			Severity:        msg.Severity,
			Subject:         msg.Subject,
			Content:         msg.Content,
			Recipients:      msg.Recipients,
			Timestamp:       timestamp,
		}).
		SetResult(&ackResponse{}).
		Post(s.config.URL)
	if err != nil {
		return "", fmt.Errorf("post webhook: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), truncate(resp.String(), 256))
	}

	ref := resp.Header().Get("X-Request-Id")
	if ack, ok := resp.Result().(*ackResponse); ok && ack.ID != "" {
		ref = ack.ID
	}

	slog.Debug("webhook delivered",
		"communication_id", msg.CommunicationID,
		"status", resp.StatusCode(),
	)
	return ref, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
