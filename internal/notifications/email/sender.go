// Package email provides email notification sending via SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/notifications"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Config holds email sender configuration.
type Config struct {
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	FromAddress        string
	FromName           string
	InsecureSkipVerify bool
}

// dialer is the part of gomail.Dialer the sender uses.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Sender implements email notification sender via SMTP.
// One message is sent per communication with all recipients in BCC.
type Sender struct {
	config   Config
	dialer   dialer
	renderer *notifications.Renderer
}

// NewSender creates a new email sender.
func NewSender(config Config, renderer *notifications.Renderer) (*Sender, error) {
	if config.SMTPHost == "" {
		return nil, errors.New("email sender: SMTP host is required")
	}
	if config.FromAddress == "" {
		return nil, errors.New("email sender: from address is required")
	}
	if renderer == nil {
		return nil, errors.New("email sender: renderer is required")
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	if config.FromName == "" {
		config.FromName = "Crisis Room"
	}

	d := gomail.NewDialer(config.SMTPHost, config.SMTPPort, config.SMTPUser, config.SMTPPassword)
	d.TLSConfig = &tls.Config{
		ServerName:         config.SMTPHost,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: config.InsecureSkipVerify, //nolint:gosec // opt-in for test relays
	}

	slog.Info("email sender configured",
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
	)

	return &Sender{
		config:   config,
		dialer:   d,
		renderer: renderer,
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeEmail
}

// Send sends one email addressed to every recipient with an email address.
// The returned reference is the Message-ID header.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) (string, error) {
	recipients := msg.EmailAddresses()
	if len(recipients) == 0 {
		return "", notifications.ErrNoRecipients
	}

	body, err := s.renderer.RenderEmail(msg)
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), messageIDDomain(s.config.FromAddress))
	m := s.buildMessage(messageID, s.renderer.Subject(msg), body, recipients, msg.Attachments)

	// gomail has no context support; the send is abandoned, not aborted,
	// when ctx expires.
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			slog.Warn("smtp delivery failed",
				"message_id", messageID,
				"retryable", IsRetryable(err),
				"error", err,
			)
			return "", fmt.Errorf("send email: %w", err)
		}
	case <-ctx.Done():
		return "", fmt.Errorf("send email: %w", ctx.Err())
	}

	slog.Debug("email sent",
		"message_id", messageID,
		"recipient_count", len(recipients),
	)
	return messageID, nil
}

// buildMessage constructs the email message with headers.
func (s *Sender) buildMessage(messageID, subject, htmlBody string, recipients []string, attachments []notifications.Attachment) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", extractEmail(s.config.FromAddress), s.config.FromName)
	m.SetHeader("Bcc", recipients...)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", htmlBody)

	for _, a := range attachments {
		data := a.Data
		m.Attach(a.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}
	return m
}

// extractEmail extracts the email address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}

func messageIDDomain(from string) string {
	addr := extractEmail(from)
	if idx := strings.LastIndex(addr, "@"); idx != -1 && idx < len(addr)-1 {
		return addr[idx+1:]
	}
	return "crisis-room.local"
}

// IsRetryable determines if an SMTP error is temporary. Failed
// communications are never retried automatically; the flag only tells
// operators whether re-sending is worthwhile.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := err.Error()

	// SMTP 4xx codes are temporary failures
	return strings.Contains(errStr, "421") ||
		strings.Contains(errStr, "450") ||
		strings.Contains(errStr, "451") ||
		strings.Contains(errStr, "452")
}
