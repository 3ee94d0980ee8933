package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
)

const defaultSendTimeout = 10 * time.Second

// Dispatcher routes messages to the sender registered for their channel.
// It never returns an error: sender failures become failed results.
type Dispatcher struct {
	senders map[domain.ChannelType]Sender
	timeout time.Duration
}

// NewDispatcher creates a dispatcher with the given senders registered.
// A zero timeout means 10s.
func NewDispatcher(timeout time.Duration, senders ...Sender) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	senderMap := make(map[domain.ChannelType]Sender)
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	return &Dispatcher{
		senders: senderMap,
		timeout: timeout,
	}
}

// Register adds or replaces the sender for its channel.
func (d *Dispatcher) Register(s Sender) {
	d.senders[s.Type()] = s
}

// Supports reports whether a sender is registered for the channel.
func (d *Dispatcher) Supports(channel domain.ChannelType) bool {
	_, ok := d.senders[channel]
	return ok
}

// Dispatch sends the message through its channel.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) DeliveryResult {
	sender, ok := d.senders[msg.Channel]
	if !ok {
		slog.Warn("no sender for channel type",
			"channel", msg.Channel,
			"communication_id", msg.CommunicationID,
		)
		recordDispatch(string(msg.Channel), domain.DeliveryStatusFailed)
		return DeliveryResult{
			Status: domain.DeliveryStatusFailed,
			Err:    fmt.Errorf("%w: %q", ErrUnsupportedChannel, msg.Channel),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	ref, err := d.send(ctx, sender, msg)
	recordDispatchDuration(string(msg.Channel), time.Since(start))

	var partial *PartialError
	switch {
	case err == nil:
		recordDispatch(string(msg.Channel), domain.DeliveryStatusSent)
		slog.Info("communication delivered",
			"communication_id", msg.CommunicationID,
			"channel", msg.Channel,
			"recipients", len(msg.Recipients),
		)
		return DeliveryResult{Status: domain.DeliveryStatusSent, ProviderRef: ref}

	case errors.As(err, &partial):
		// At least one recipient got the message; the aggregate is sent.
		recordDispatch(string(msg.Channel), domain.DeliveryStatusSent)
		slog.Warn("communication partially delivered",
			"communication_id", msg.CommunicationID,
			"channel", msg.Channel,
			"failed", len(partial.Failed),
			"total", partial.Total,
		)
		return DeliveryResult{Status: domain.DeliveryStatusSent, ProviderRef: ref, Err: err}

	default:
		recordDispatch(string(msg.Channel), domain.DeliveryStatusFailed)
		slog.Error("failed to send communication",
			"communication_id", msg.CommunicationID,
			"channel", msg.Channel,
			"error", err,
		)
		return DeliveryResult{Status: domain.DeliveryStatusFailed, ProviderRef: ref, Err: err}
	}
}

func (d *Dispatcher) send(ctx context.Context, sender Sender, msg Message) (ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSenderPanic, r)
		}
	}()
	return sender.Send(ctx, msg)
}
