// Package audit streams persisted room timeline entries to Kafka.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/pkg/metrics"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	Topic        string
	Username     string
	Password     string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// Event is the message value written for each timeline entry.
type Event struct {
	RoomID   string               `json:"roomId"`
	EventID  string               `json:"eventId"`
	Severity domain.Severity      `json:"severity"`
	Status   domain.RoomStatus    `json:"status"`
	Entry    domain.TimelineEntry `json:"entry"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes timeline entries to a Kafka topic keyed by room id, so
// entries of one room stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	topic  string
}

// NewPublisher creates a new Kafka timeline publisher.
func NewPublisher(config Config) (*Publisher, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.New("kafka publisher: at least one broker is required")
	}
	if config.Topic == "" {
		return nil, errors.New("kafka publisher: topic is required")
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = 50 * time.Millisecond
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	transport := &kafka.Transport{}
	if config.Username != "" {
		transport.SASL = plain.Mechanism{
			Username: config.Username,
			Password: config.Password,
		}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           config.BatchTimeout,
		WriteTimeout:           config.WriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		Transport:              transport,
		AllowAutoTopicCreation: false,
	}

	slog.Info("kafka timeline publisher created",
		"brokers", config.Brokers,
		"topic", config.Topic,
		"sasl_enabled", config.Username != "",
	)

	return &Publisher{writer: writer, topic: config.Topic}, nil
}

// PublishTimeline writes one message per entry.
func (p *Publisher) PublishTimeline(ctx context.Context, room *domain.Room, entries []domain.TimelineEntry) error {
	if len(entries) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(entries))
	for _, entry := range entries {
		value, err := json.Marshal(Event{
			RoomID:   room.ID,
			EventID:  room.EventID,
			Severity: room.Severity,
			Status:   room.Status,
			Entry:    entry,
		})
		if err != nil {
			return fmt.Errorf("marshal timeline entry: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(room.ID),
			Value: value,
			Time:  entry.Timestamp,
			Headers: []kafka.Header{
				{Key: "entry_type", Value: []byte(entry.Type)},
				{Key: "source", Value: []byte("crisis-room")},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		metrics.TimelinePublished.WithLabelValues(classifyError(err)).Add(float64(len(msgs)))
		return fmt.Errorf("write to %s: %w", p.topic, err)
	}

	metrics.TimelinePublished.WithLabelValues("success").Add(float64(len(msgs)))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// classifyError maps write errors to a low-cardinality metric label.
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}

	var kafkaErr kafka.Error
	if errors.As(err, &kafkaErr) {
		return "broker"
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "SASL") || strings.Contains(msg, "authentication"):
		return "auth"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	}
	return "unknown"
}
