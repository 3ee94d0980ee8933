// Package events provides read access to detected geopolitical events.
// Events are produced by an upstream detection pipeline; this service only
// opens crisis rooms against them.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
)

// ErrEventNotFound is returned when an event does not exist.
var ErrEventNotFound = errors.New("event not found")

// Repository defines read access to event storage.
type Repository interface {
	GetEvent(ctx context.Context, id string) (*domain.GeopoliticalEvent, error)
	// ListEvents returns one page of matching events and the number of
	// matches across all pages.
	ListEvents(ctx context.Context, filters EventFilters) ([]*domain.GeopoliticalEvent, int, error)
}

// EventFilters holds filter options for listing events.
type EventFilters struct {
	Region   string
	Severity string
	Since    *time.Time
	Limit    int
	Offset   int
}
