// Package postgres provides PostgreSQL implementation of events repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/events"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements events.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const selectEvent = `
	SELECT id, title, description, severity, regions, detected_at
	FROM geopolitical_events
`

// GetEvent retrieves an event by ID.
func (r *Repository) GetEvent(ctx context.Context, id string) (*domain.GeopoliticalEvent, error) {
	event, err := scanEvent(r.db.QueryRow(ctx, selectEvent+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// ListEvents retrieves events with optional filters, newest first, along
// with the total number of matches.
func (r *Repository) ListEvents(ctx context.Context, filters events.EventFilters) ([]*domain.GeopoliticalEvent, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if filters.Region != "" {
		where += fmt.Sprintf(" AND $%d = ANY(regions)", argNum)
		args = append(args, filters.Region)
		argNum++
	}

	if filters.Severity != "" {
		where += fmt.Sprintf(" AND severity = $%d", argNum)
		args = append(args, filters.Severity)
		argNum++
	}

	if filters.Since != nil {
		where += fmt.Sprintf(" AND detected_at >= $%d", argNum)
		args = append(args, *filters.Since)
		argNum++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM geopolitical_events"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	query := selectEvent + where + " ORDER BY detected_at DESC, id"

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
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	list := make([]*domain.GeopoliticalEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		list = append(list, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate events: %w", err)
	}

	return list, total, nil
}

func scanEvent(row pgx.Row) (*domain.GeopoliticalEvent, error) {
	var event domain.GeopoliticalEvent
	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&event.Severity,
		&event.Regions,
		&event.DetectedAt,
	)
	if err != nil {
		return nil, err
	}
	if event.Regions == nil {
		event.Regions = []string{}
	}
	return &event, nil
}
