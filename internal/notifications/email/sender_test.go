package email

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	messages []*gomail.Message
	err      error
	delay    time.Duration
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return d.err
	}
	d.messages = append(d.messages, m...)
	return nil
}

func newTestSender(t *testing.T, d *fakeDialer) *Sender {
	t.Helper()
	renderer, err := notifications.NewRenderer()
	require.NoError(t, err)

	sender, err := NewSender(Config{
		SMTPHost:    "smtp.example.com",
		FromAddress: "Crisis Desk <alerts@example.com>",
	}, renderer)
	require.NoError(t, err)
	sender.dialer = d
	return sender
}

func testMessage() notifications.Message {
	return notifications.Message{
		CommunicationID: "comm-1",
		RoomID:          "room-1",
		Type:            domain.CommunicationTypeInitialAlert,
		Channel:         domain.ChannelTypeEmail,
		Recipients: []domain.Recipient{
			{StakeholderID: "s1", Name: "Alice", Email: "alice@example.com"},
			{StakeholderID: "s2", Name: "Bob", Email: "bob@example.com"},
			{StakeholderID: "s3", Name: "Carol"},
		},
		Subject:  "Port closure in the strait",
		Content:  "Shipping lanes closed until further notice.",
		Severity: domain.SeverityHigh,
		SentAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewSender_Validation(t *testing.T) {
	renderer, err := notifications.NewRenderer()
	require.NoError(t, err)

	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "without smtp host",
			config:  Config{FromAddress: "test@example.com"},
			wantErr: "SMTP host is required",
		},
		{
			name:    "without from address",
			config:  Config{SMTPHost: "smtp.example.com"},
			wantErr: "from address is required",
		},
		{
			name: "valid config",
			config: Config{
				SMTPHost:    "smtp.example.com",
				FromAddress: "test@example.com",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(tt.config, renderer)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, sender)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, sender)
			}
		})
	}
}

func TestNewSender_Defaults(t *testing.T) {
	renderer, err := notifications.NewRenderer()
	require.NoError(t, err)

	sender, err := NewSender(Config{
		SMTPHost:    "smtp.example.com",
		FromAddress: "test@example.com",
	}, renderer)
	require.NoError(t, err)

	assert.Equal(t, 587, sender.config.SMTPPort)
	assert.Equal(t, "Crisis Room", sender.config.FromName)
}

func TestSender_Type(t *testing.T) {
	sender := newTestSender(t, &fakeDialer{})
	assert.Equal(t, domain.ChannelTypeEmail, sender.Type())
}

func TestSender_Send_SingleMessageToAllRecipients(t *testing.T) {
	d := &fakeDialer{}
	sender := newTestSender(t, d)

	ref, err := sender.Send(context.Background(), testMessage())
	require.NoError(t, err)

	require.Len(t, d.messages, 1)
	m := d.messages[0]
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, m.GetHeader("Bcc"))
	assert.Equal(t, []string{"[Crisis Alert] Port closure in the strait"}, m.GetHeader("Subject"))
	assert.Equal(t, []string{ref}, m.GetHeader("Message-ID"))
	assert.Contains(t, ref, "@example.com>")

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "text/html")
}

func TestSender_Send_WithAttachment(t *testing.T) {
	d := &fakeDialer{}
	sender := newTestSender(t, d)

	msg := testMessage()
	msg.Attachments = []notifications.Attachment{
		{Filename: "briefing.txt", Data: []byte("situation report")},
	}

	_, err := sender.Send(context.Background(), msg)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = d.messages[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "briefing.txt")
}

func TestSender_Send_NoEmailRecipients(t *testing.T) {
	d := &fakeDialer{}
	sender := newTestSender(t, d)

	msg := testMessage()
	msg.Recipients = []domain.Recipient{{Name: "Phone only", Phone: "+15550100"}}

	_, err := sender.Send(context.Background(), msg)
	require.ErrorIs(t, err, notifications.ErrNoRecipients)
	assert.Empty(t, d.messages)
}

func TestSender_Send_DialError(t *testing.T) {
	d := &fakeDialer{err: errors.New("550 mailbox not found")}
	sender := newTestSender(t, d)

	_, err := sender.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "550 mailbox not found")
}

func TestSender_Send_ContextExpired(t *testing.T) {
	d := &fakeDialer{delay: 200 * time.Millisecond}
	sender := newTestSender(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := sender.Send(ctx, testMessage())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "user@example.com", expected: "user@example.com"},
		{input: "Test User <user@example.com>", expected: "user@example.com"},
		{input: "<user@example.com>", expected: "user@example.com"},
		{input: "invalid<", expected: "invalid<"},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractEmail(tt.input))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil error", err: nil, retryable: false},
		{name: "421 service unavailable", err: errors.New("421 Service not available"), retryable: true},
		{name: "451 local error", err: errors.New("451 Local error in processing"), retryable: true},
		{name: "550 mailbox not found", err: errors.New("550 Mailbox not found"), retryable: false},
		{name: "535 auth failed", err: errors.New("535 Authentication failed"), retryable: false},
		{name: "timeout error", err: &timeoutError{}, retryable: true},
		{
			name:      "network operation error",
			err:       &net.OpError{Op: "dial", Err: errors.New("connection refused")},
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

// timeoutError implements net.Error for testing
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
