package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// ActivitiesRepository is the Postgres activity ledger.
type ActivitiesRepository struct {
	db *sql.DB
}

// NewActivitiesRepository creates a new activities repository.
func NewActivitiesRepository(db *sql.DB) *ActivitiesRepository {
	return &ActivitiesRepository{db: db}
}

var _ ActivityStore = (*ActivitiesRepository)(nil)

// Append inserts an activity. Re-appending a stored id is a no-op.
func (r *ActivitiesRepository) Append(ctx context.Context, a *domain.Activity) error {
	query := `
		INSERT INTO activities (id, team_id, user_id, activity_type, description, related_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.TeamID, a.UserID, a.Type, a.Description, a.RelatedID, a.CreatedAt,
	)
	return err
}

// List reads the ledger newest first.
func (r *ActivitiesRepository) List(ctx context.Context, filter domain.ActivityFilter) ([]*domain.Activity, error) {
	query := `
		SELECT id, team_id, user_id, activity_type, description, related_id, created_at
		FROM activities
		WHERE ($1::uuid IS NULL OR team_id = $1)
		  AND ($2 = '' OR activity_type = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, query,
		filter.TeamID, string(filter.Type), limitArg(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []*domain.Activity
	for rows.Next() {
		a := &domain.Activity{}
		if err := rows.Scan(&a.ID, &a.TeamID, &a.UserID, &a.Type, &a.Description, &a.RelatedID, &a.CreatedAt); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// CountByType counts ledger entries per activity type.
func (r *ActivitiesRepository) CountByType(ctx context.Context, teamID *uuid.UUID) ([]domain.ActivityCount, error) {
	query := `
		SELECT activity_type, COUNT(*)
		FROM activities
		WHERE ($1::uuid IS NULL OR team_id = $1)
		GROUP BY activity_type
		ORDER BY activity_type
	`
	rows, err := r.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.ActivityCount
	for rows.Next() {
		var c domain.ActivityCount
		if err := rows.Scan(&c.Type, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
