// Package postgres provides PostgreSQL implementation of the rooms repository.
// Each room is stored as one JSONB document next to the columns it is
// filtered by.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/rooms"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements the rooms.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateRoom inserts a new room with version 1.
func (r *Repository) CreateRoom(ctx context.Context, room *domain.Room) error {
	room.Version = 1
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}

	query := `
		INSERT INTO crisis_rooms (id, event_id, status, severity, data, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.Exec(ctx, query,
		room.ID,
		room.EventID,
		room.Status,
		room.Severity,
		data,
		room.Version,
		room.CreatedAt,
	)
	if err != nil {
		room.Version = 0
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room by ID.
func (r *Repository) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	query := `SELECT data, version FROM crisis_rooms WHERE id = $1`

	room, err := scanRoom(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rooms.ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	return room, nil
}

// SaveRoom overwrites the room if the stored version still matches.
func (r *Repository) SaveRoom(ctx context.Context, room *domain.Room) error {
	expected := room.Version
	room.Version = expected + 1

	data, err := json.Marshal(room)
	if err != nil {
		room.Version = expected
		return fmt.Errorf("marshal room: %w", err)
	}

	query := `
		UPDATE crisis_rooms
		SET data = $1, status = $2, severity = $3, version = $4, updated_at = NOW()
		WHERE id = $5 AND version = $6
	`
	result, err := r.db.Exec(ctx, query,
		data,
		room.Status,
		room.Severity,
		room.Version,
		room.ID,
		expected,
	)
	if err != nil {
		room.Version = expected
		return fmt.Errorf("save room: %w", err)
	}

	if result.RowsAffected() == 0 {
		room.Version = expected

		var exists bool
		err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM crisis_rooms WHERE id = $1)`, room.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check room exists: %w", err)
		}
		if !exists {
			return rooms.ErrRoomNotFound
		}
		return rooms.ErrVersionConflict
	}
	return nil
}

// ListRooms retrieves rooms with optional filters, newest first.
func (r *Repository) ListRooms(ctx context.Context, filters rooms.RoomFilters) ([]*domain.Room, error) {
	query := `SELECT data, version FROM crisis_rooms WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filters.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filters.Status)
		argNum++
	}

	if filters.Severity != nil {
		query += fmt.Sprintf(" AND severity = $%d", argNum)
		args = append(args, *filters.Severity)
		argNum++
	}

	if filters.ExcludeResolved {
		query += fmt.Sprintf(" AND status <> $%d", argNum)
		args = append(args, domain.RoomStatusResolved)
		argNum++
	}

	query += " ORDER BY created_at DESC, id"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	list := make([]*domain.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		list = append(list, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	return list, nil
}

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var data []byte
	var version int
	if err := row.Scan(&data, &version); err != nil {
		return nil, err
	}

	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("unmarshal room: %w", err)
	}
	room.Version = version
	return &room, nil
}
