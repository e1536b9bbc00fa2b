package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// MeetingsRepository handles meeting persistence.
type MeetingsRepository struct {
	db *sql.DB
}

// NewMeetingsRepository creates a new meetings repository.
func NewMeetingsRepository(db *sql.DB) *MeetingsRepository {
	return &MeetingsRepository{db: db}
}

var _ MeetingStore = (*MeetingsRepository)(nil)

const meetingColumns = `id, team_id, title, description, organizer, participants, start_time, end_time, created_at, updated_at`

// Create creates a new meeting.
func (r *MeetingsRepository) Create(ctx context.Context, m *domain.Meeting) error {
	query := `
		INSERT INTO meetings (` + meetingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.TeamID, m.Title, m.Description, m.Organizer, pq.Array(uuidStrings(m.Participants)),
		m.StartTime, m.EndTime, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

// GetByID retrieves a meeting by ID.
func (r *MeetingsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE id = $1`
	m, err := scanMeeting(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("meeting %s not found", id)
	}
	return m, err
}

// List returns meetings of one team, or of every team when teamID is nil.
func (r *MeetingsRepository) List(ctx context.Context, teamID *uuid.UUID, opts ListOptions) ([]*domain.Meeting, error) {
	query := `
		SELECT ` + meetingColumns + `
		FROM meetings
		WHERE ($1::uuid IS NULL OR team_id = $1)
		ORDER BY start_time, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, teamID, limitArg(opts.Limit), opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meetings []*domain.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// Update updates a meeting.
func (r *MeetingsRepository) Update(ctx context.Context, m *domain.Meeting) error {
	query := `
		UPDATE meetings
		SET title = $2, description = $3, participants = $4, start_time = $5, end_time = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		m.ID, m.Title, m.Description, pq.Array(uuidStrings(m.Participants)), m.StartTime, m.EndTime, m.UpdatedAt,
	)
	return affectedOne(result, err, "meeting", m.ID)
}

// AddParticipant appends userID to the participants unless already present.
func (r *MeetingsRepository) AddParticipant(ctx context.Context, id, userID uuid.UUID) error {
	query := `
		UPDATE meetings
		SET participants = CASE WHEN $2::uuid = ANY(participants) THEN participants
		                        ELSE array_append(participants, $2::uuid) END,
		    updated_at = now()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	return affectedOne(result, err, "meeting", id)
}

// Delete deletes a meeting.
func (r *MeetingsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM meetings WHERE id = $1`, id)
	return affectedOne(result, err, "meeting", id)
}

// DeleteByTeam deletes every meeting of a team.
func (r *MeetingsRepository) DeleteByTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM meetings WHERE team_id = $1`, teamID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByTeam counts the meetings of a team.
func (r *MeetingsRepository) CountByTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meetings WHERE team_id = $1`, teamID).Scan(&n)
	return n, err
}

func scanMeeting(row rowScanner) (*domain.Meeting, error) {
	m := &domain.Meeting{}
	var participants []string
	err := row.Scan(
		&m.ID, &m.TeamID, &m.Title, &m.Description, &m.Organizer, pq.Array(&participants),
		&m.StartTime, &m.EndTime, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.Participants, err = parseUUIDs(participants); err != nil {
		return nil, err
	}
	return m, nil
}
