package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// TeamsRepository handles team persistence. Members are stored as a JSONB
// array on the team row so a membership change is a single-row write.
type TeamsRepository struct {
	db *sql.DB
}

// NewTeamsRepository creates a new teams repository.
func NewTeamsRepository(db *sql.DB) *TeamsRepository {
	return &TeamsRepository{db: db}
}

var _ TeamStore = (*TeamsRepository)(nil)

const teamColumns = `id, name, description, created_by, members, status, version, created_at, updated_at`

// Create creates a new team.
func (r *TeamsRepository) Create(ctx context.Context, team *domain.Team) error {
	members, err := json.Marshal(team.Members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	query := `
		INSERT INTO teams (id, name, description, created_by, members, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		team.ID, team.Name, team.Description, team.CreatedBy, members,
		team.Status, team.Version, team.CreatedAt, team.UpdatedAt,
	)
	return err
}

// GetByID retrieves a team by ID.
func (r *TeamsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`
	team, err := scanTeam(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("team %s not found", id)
	}
	return team, err
}

// List returns teams ordered by creation time, optionally only those with a given member.
func (r *TeamsRepository) List(ctx context.Context, filter TeamFilter) ([]*domain.Team, error) {
	var memberFilter any
	if filter.MemberID != nil {
		b, err := json.Marshal([]map[string]string{{"user_id": filter.MemberID.String()}})
		if err != nil {
			return nil, err
		}
		memberFilter = string(b)
	}
	query := `
		SELECT ` + teamColumns + `
		FROM teams
		WHERE ($1::jsonb IS NULL OR members @> $1::jsonb)
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, memberFilter, limitArg(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []*domain.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

// Update writes the team when the stored version still equals expected.
func (r *TeamsRepository) Update(ctx context.Context, team *domain.Team, expected int64) error {
	members, err := json.Marshal(team.Members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	query := `
		UPDATE teams
		SET name = $3, description = $4, created_by = $5, members = $6, status = $7,
		    version = version + 1, updated_at = $8
		WHERE id = $1 AND version = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		team.ID, expected, team.Name, team.Description, team.CreatedBy, members,
		team.Status, team.UpdatedAt,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM teams WHERE id = $1)`, team.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound("team %s not found", team.ID)
		}
		return domain.ErrConflict("team %s was modified concurrently", team.ID)
	}
	team.Version = expected + 1
	return nil
}

// Delete removes a team record.
func (r *TeamsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound("team %s not found", id)
	}
	return nil
}

func scanTeam(row rowScanner) (*domain.Team, error) {
	team := &domain.Team{}
	var members []byte
	err := row.Scan(
		&team.ID, &team.Name, &team.Description, &team.CreatedBy, &members,
		&team.Status, &team.Version, &team.CreatedAt, &team.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &team.Members); err != nil {
		return nil, fmt.Errorf("decode members of team %s: %w", team.ID, err)
	}
	return team, nil
}
