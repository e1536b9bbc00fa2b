package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// FilesRepository handles file metadata persistence.
type FilesRepository struct {
	db *sql.DB
}

// NewFilesRepository creates a new files repository.
func NewFilesRepository(db *sql.DB) *FilesRepository {
	return &FilesRepository{db: db}
}

var _ FileStore = (*FilesRepository)(nil)

const fileColumns = `id, team_id, name, content_type, size_bytes, uploaded_by, created_at, updated_at`

// Create records a new file.
func (r *FilesRepository) Create(ctx context.Context, f *domain.File) error {
	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.TeamID, f.Name, f.ContentType, f.SizeBytes, f.UploadedBy, f.CreatedAt, f.UpdatedAt,
	)
	return err
}

// GetByID retrieves a file by ID.
func (r *FilesRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("file %s not found", id)
	}
	return f, err
}

// List returns files of one team, or of every team when teamID is nil.
func (r *FilesRepository) List(ctx context.Context, teamID *uuid.UUID, opts ListOptions) ([]*domain.File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE ($1::uuid IS NULL OR team_id = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, teamID, limitArg(opts.Limit), opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*domain.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Update updates a file's metadata.
func (r *FilesRepository) Update(ctx context.Context, f *domain.File) error {
	query := `UPDATE files SET name = $2, content_type = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, f.ID, f.Name, f.ContentType, f.UpdatedAt)
	return affectedOne(result, err, "file", f.ID)
}

// Delete deletes a file record.
func (r *FilesRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	return affectedOne(result, err, "file", id)
}

// DeleteByTeam deletes every file record of a team.
func (r *FilesRepository) DeleteByTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE team_id = $1`, teamID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByTeam counts the files of a team.
func (r *FilesRepository) CountByTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE team_id = $1`, teamID).Scan(&n)
	return n, err
}

func scanFile(row rowScanner) (*domain.File, error) {
	f := &domain.File{}
	err := row.Scan(&f.ID, &f.TeamID, &f.Name, &f.ContentType, &f.SizeBytes, &f.UploadedBy, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}
