package rooms

import (
	"context"

	"github.com/bissquit/crisis-room/internal/domain"
)

// Repository defines the interface for room storage. The room is stored
// as a whole aggregate.
type Repository interface {
	CreateRoom(ctx context.Context, room *domain.Room) error
	GetRoom(ctx context.Context, id string) (*domain.Room, error)
	// SaveRoom persists room if its Version still matches the stored one
	// and increments Version. Returns ErrVersionConflict otherwise.
	SaveRoom(ctx context.Context, room *domain.Room) error
	ListRooms(ctx context.Context, filters RoomFilters) ([]*domain.Room, error)
}

// RoomFilters holds filter options for listing rooms.
type RoomFilters struct {
	Status          *domain.RoomStatus
	Severity        *domain.Severity
	ExcludeResolved bool
	Limit           int
	Offset          int
}
