// Package sms provides SMS notification sending via the Twilio Messages API.
package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/notifications"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL    = "https://api.twilio.com"
	defaultRateLimit = 1.0 // messages per second, Twilio long-code default
	defaultTimeout   = 10 * time.Second
	messagesPath     = "/2010-04-01/Accounts/{account}/Messages.json"
)

// Config holds SMS sender configuration.
type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	RateLimit  float64 // messages per second
	APIURL     string
	Timeout    time.Duration
}

// Sender sends one SMS per recipient through Twilio.
type Sender struct {
	config   Config
	renderer *notifications.Renderer
	client   *resty.Client
	limiter  *rate.Limiter
}

// NewSender creates a new SMS sender.
func NewSender(config Config, renderer *notifications.Renderer) (*Sender, error) {
	if config.AccountSID == "" || config.AuthToken == "" {
		return nil, errors.New("sms sender: account SID and auth token are required")
	}
	if config.FromNumber == "" {
		return nil, errors.New("sms sender: from number is required")
	}
	if renderer == nil {
		return nil, errors.New("sms sender: renderer is required")
	}

	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.APIURL == "" {
		config.APIURL = defaultAPIURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(config.APIURL).
		SetBasicAuth(config.AccountSID, config.AuthToken).
		SetTimeout(config.Timeout).
		SetPathParam("account", config.AccountSID)

	slog.Info("sms sender configured",
		"from", config.FromNumber,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:   config,
		renderer: renderer,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeSMS
}

type twilioMessage struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	MoreInfo string `json:"more_info"`
}

func (e *twilioError) Error() string {
	return fmt.Sprintf("twilio error %d: %s", e.Code, e.Message)
}

type outcome struct {
	phone string
	sid   string
	err   error
}

// Send delivers the message to every recipient with a phone number,
// concurrently. The provider reference lists the message SIDs of the
// successful recipients. A *notifications.PartialError is returned when
// some, but not all, recipients failed. Recipients without a phone number
// count as failed.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) (string, error) {
	phones := make([]string, 0, len(msg.Recipients))
	failed := make(map[string]error)
	for _, r := range msg.Recipients {
		if r.Phone == "" {
			failed[recipientKey(r)] = notifications.ErrNoRecipients
			continue
		}
		phones = append(phones, r.Phone)
	}
	if len(phones) == 0 {
		return "", notifications.ErrNoRecipients
	}

	body, err := s.renderer.RenderSMS(msg)
	if err != nil {
		return "", fmt.Errorf("render sms: %w", err)
	}

	outcomes := make([]outcome, len(phones))
	var wg sync.WaitGroup
	for i, phone := range phones {
		wg.Add(1)
		go func(i int, phone string) {
			defer wg.Done()
			sid, err := s.sendOne(ctx, phone, body)
			outcomes[i] = outcome{phone: phone, sid: sid, err: err}
		}(i, phone)
	}
	wg.Wait()

	sids := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			failed[o.phone] = o.err
			continue
		}
		sids = append(sids, o.sid)
	}

	ref := strings.Join(sids, ",")
	partial := &notifications.PartialError{Total: len(msg.Recipients), Failed: failed}

	switch {
	case len(failed) == 0:
		return ref, nil
	case len(sids) == 0:
		return "", fmt.Errorf("send sms: %s", partial.Error())
	default:
		return ref, partial
	}
}

func recipientKey(r domain.Recipient) string {
	switch {
	case r.StakeholderID != "":
		return r.StakeholderID
	case r.Email != "":
		return r.Email
	default:
		return r.Name
	}
}

func (s *Sender) sendOne(ctx context.Context, phone, body string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   phone,
			"From": s.config.FromNumber,
			"Body": body,
		}).
		SetResult(&twilioMessage{}).
		SetError(&twilioError{}).
		Post(messagesPath)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}

	if resp.IsError() {
		if apiErr, ok := resp.Error().(*twilioError); ok && apiErr.Code != 0 {
			return "", apiErr
		}
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), resp.String())
	}

	result, ok := resp.Result().(*twilioMessage)
	if !ok || result.SID == "" {
		return "", errors.New("twilio response without message sid")
	}
	if result.ErrorCode != nil {
		return "", fmt.Errorf("twilio error %d: %s", *result.ErrorCode, result.ErrorMessage)
	}

	slog.Debug("sms sent", "sid", result.SID, "status", result.Status)
	return result.SID, nil
}
