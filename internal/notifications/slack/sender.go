// Package slack provides Slack notification sending via Incoming Webhooks.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/notifications"
	slackSDK "github.com/slack-go/slack"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "Crisis Room"
)

// Config holds Slack sender configuration.
type Config struct {
	WebhookURL string
	Username   string
	IconEmoji  string
	Channel    string // overrides the webhook's default channel
	Timeout    time.Duration
}

// Sender posts communications to a Slack incoming webhook.
type Sender struct {
	config     Config
	renderer   *notifications.Renderer
	httpClient *http.Client
}

// NewSender creates a new Slack sender.
func NewSender(config Config, renderer *notifications.Renderer) (*Sender, error) {
	if config.WebhookURL == "" {
		return nil, errors.New("slack sender: webhook URL is required")
	}
	if renderer == nil {
		return nil, errors.New("slack sender: renderer is required")
	}
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config:     config,
		renderer:   renderer,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeSlack
}

// Send posts the message. Incoming webhooks return no message id, so the
// provider reference is always empty.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) (string, error) {
	text, err := s.renderer.RenderChat(msg)
	if err != nil {
		return "", fmt.Errorf("render chat: %w", err)
	}

	payload := s.buildPayload(msg, text)
	if err := slackSDK.PostWebhookCustomHTTPContext(ctx, s.config.WebhookURL, s.httpClient, payload); err != nil {
		var rateLimited *slackSDK.RateLimitedError
		if errors.As(err, &rateLimited) {
			return "", fmt.Errorf("slack rate limited, retry after %s: %w", rateLimited.RetryAfter, err)
		}
		return "", fmt.Errorf("post slack webhook: %w", err)
	}

	slog.Debug("slack message sent",
		"communication_id", msg.CommunicationID,
		"recipients", len(msg.Recipients),
	)
	return "", nil
}

func (s *Sender) buildPayload(msg notifications.Message, text string) *slackSDK.WebhookMessage {
	fields := []slackSDK.AttachmentField{
		{Title: "Type", Value: string(msg.Type), Short: true},
	}
	if msg.Severity != "" {
		fields = append(fields, slackSDK.AttachmentField{Title: "Severity", Value: string(msg.Severity), Short: true})
	}
	if len(msg.Recipients) > 0 {
		fields = append(fields, slackSDK.AttachmentField{
			Title: "Recipients",
			Value: recipientNames(msg.Recipients),
		})
	}

	return &slackSDK.WebhookMessage{
		Username:  s.config.Username,
		IconEmoji: s.config.IconEmoji,
		Channel:   s.config.Channel,
		Text:      s.renderer.Subject(msg),
		Attachments: []slackSDK.Attachment{
			{
				Color:      severityColor(msg.Severity),
				Text:       text,
				Fields:     fields,
				Footer:     "crisis room " + msg.RoomID,
				Ts:         json.Number(strconv.FormatInt(msg.SentAt.Unix(), 10)),
				MarkdownIn: []string{"text"},
			},
		},
	}
}

func recipientNames(recipients []domain.Recipient) string {
	names := make([]string, 0, len(recipients))
	for _, r := range recipients {
		names = append(names, r.Name)
	}
	return strings.Join(names, ", ")
}

func severityColor(severity domain.Severity) string {
	switch severity {
	case domain.SeverityCritical:
		return "#d32f2f"
	case domain.SeverityHigh:
		return "#f57c00"
	case domain.SeverityMedium:
		return "#fbc02d"
	case domain.SeverityLow:
		return "#388e3c"
	default:
		return "#9e9e9e"
	}
}
