// Package teams provides Microsoft Teams notification sending via Incoming Webhooks.
package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/notifications"
)

const defaultTimeout = 10 * time.Second

// Config holds Teams sender configuration.
type Config struct {
	WebhookURL string
	Timeout    time.Duration
}

// Sender implements Teams notification sender via Incoming Webhooks.
type Sender struct {
	config     Config
	renderer   *notifications.Renderer
	httpClient *http.Client
}

// NewSender creates a new Teams sender.
func NewSender(config Config, renderer *notifications.Renderer) (*Sender, error) {
	if config.WebhookURL == "" {
		return nil, errors.New("teams sender: webhook URL is required")
	}
	if renderer == nil {
		return nil, errors.New("teams sender: renderer is required")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config:   config,
		renderer: renderer,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeTeams
}

type messageCard struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	Summary    string `json:"summary"`
	ThemeColor string `json:"themeColor,omitempty"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

// Send posts the message as a MessageCard. Teams answers with "1" and no
// message id, so the provider reference is always empty.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) (string, error) {
	text, err := s.renderer.RenderChat(msg)
	if err != nil {
		return "", fmt.Errorf("render chat: %w", err)
	}

	subject := s.renderer.Subject(msg)
	card := messageCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		Summary:    subject,
		ThemeColor: themeColor(msg.Severity),
		Title:      subject,
		// Teams renders single newlines as spaces.
		Text: strings.ReplaceAll(text, "\n", "\n\n"),
	}

	body, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := s.handleResponse(resp); err != nil {
		return "", err
	}

	slog.Debug("teams message sent",
		"webhook", maskWebhookURL(s.config.WebhookURL),
		"communication_id", msg.CommunicationID,
	)
	return "", nil
}

func (s *Sender) handleResponse(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil

	case resp.StatusCode == http.StatusBadRequest:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("bad request: %s", string(body)),
		}

	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "invalid or expired webhook",
		}

	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "webhook not found",
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: "rate limited",
		}

	case resp.StatusCode >= 500:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("server error: %s", string(body)),
		}

	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

func themeColor(severity domain.Severity) string {
	switch severity {
	case domain.SeverityCritical:
		return "D32F2F"
	case domain.SeverityHigh:
		return "F57C00"
	case domain.SeverityMedium:
		return "FBC02D"
	case domain.SeverityLow:
		return "388E3C"
	default:
		return ""
	}
}

// maskWebhookURL hides part of the URL for logging.
func maskWebhookURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}

// PermanentError indicates the webhook rejected the message for good.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("teams error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("teams error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary failure worth re-sending manually.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("teams error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("teams error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
