package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MonitorActor is recorded as triggeredBy on automatic escalations.
const MonitorActor = "system:no-response-monitor"

// MonitorConfig contains no-response monitor configuration.
type MonitorConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultMonitorConfig returns default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval: time.Minute,
		BatchSize:    100,
	}
}

// Monitor escalates rooms whose acknowledgement-requiring communications
// went unanswered past the room's no-response threshold.
type Monitor struct {
	config  MonitorConfig
	service *Service

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a new no-response monitor.
func NewMonitor(config MonitorConfig, service *Service) *Monitor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultMonitorConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultMonitorConfig().BatchSize
	}
	return &Monitor{
		config:  config,
		service: service,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the polling goroutine.
func (m *Monitor) Start(ctx context.Context) {
	slog.Info("starting no-response monitor",
		"poll_interval", m.config.PollInterval,
		"batch_size", m.config.BatchSize,
	)

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop stops polling and waits for the current scan to finish.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	slog.Info("no-response monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if _, err := m.Scan(ctx); err != nil {
				slog.Error("no-response scan failed", "error", err)
			}
		}
	}
}

// Scan checks every open room once and returns the number of escalations
// triggered.
func (m *Monitor) Scan(ctx context.Context) (int, error) {
	escalated := 0
	for offset := 0; ; offset += m.config.BatchSize {
		rooms, err := m.service.ListRooms(ctx, RoomFilters{
			ExcludeResolved: true,
			Limit:           m.config.BatchSize,
			Offset:          offset,
		})
		if err != nil {
			return escalated, fmt.Errorf("list open rooms: %w", err)
		}

		now := m.service.now()
		for _, room := range rooms {
			if !NeedsNoResponseEscalation(room, now) {
				continue
			}

			reason := fmt.Sprintf("No response within %d minutes", room.Settings.NoResponseThresholdMin)
			esc, err := m.service.TriggerEscalation(ctx, room.ID, reason, MonitorActor)
			switch {
			case errors.Is(err, ErrRoomResolved):
				continue
			case err != nil:
				slog.Error("failed to auto-escalate room", "room_id", room.ID, "error", err)
				continue
			}

			escalated++
			slog.Info("room auto-escalated",
				"room_id", room.ID,
				"level", esc.Level,
			)
		}

		if len(rooms) < m.config.BatchSize {
			return escalated, nil
		}
	}
}
