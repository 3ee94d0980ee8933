// Package postgres provides PostgreSQL storage of stakeholder scoring profiles.
package postgres

import (
	"context"
	"fmt"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository reads stakeholder profiles.
type ProfileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository creates a new PostgreSQL profile repository.
func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// ListProfiles returns every stakeholder profile.
func (r *ProfileRepository) ListProfiles(ctx context.Context) ([]domain.StakeholderProfile, error) {
	query := `
		SELECT id, name, industry, regions, keywords
		FROM stakeholder_profiles
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]domain.StakeholderProfile, 0)
	for rows.Next() {
		var p domain.StakeholderProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.Industry, &p.Regions, &p.Keywords); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	return profiles, nil
}
