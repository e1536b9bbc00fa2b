package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// TasksRepository handles task persistence.
type TasksRepository struct {
	db *sql.DB
}

// NewTasksRepository creates a new tasks repository.
func NewTasksRepository(db *sql.DB) *TasksRepository {
	return &TasksRepository{db: db}
}

var _ TaskStore = (*TasksRepository)(nil)

const taskColumns = `id, team_id, title, description, status, priority, created_by, assigned_to, due_date, created_at, updated_at`

// Create creates a new task.
func (r *TasksRepository) Create(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.TeamID, task.Title, task.Description, task.Status, task.Priority,
		task.CreatedBy, task.AssignedTo, task.DueDate, task.CreatedAt, task.UpdatedAt,
	)
	return err
}

// GetByID retrieves a task by ID.
func (r *TasksRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("task %s not found", id)
	}
	return task, err
}

// List returns tasks of one team, or of every team when teamID is nil.
func (r *TasksRepository) List(ctx context.Context, teamID *uuid.UUID, opts ListOptions) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE ($1::uuid IS NULL OR team_id = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, teamID, limitArg(opts.Limit), opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Update updates a task.
func (r *TasksRepository) Update(ctx context.Context, task *domain.Task) error {
	query := `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, priority = $5,
		    assigned_to = $6, due_date = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		task.ID, task.Title, task.Description, task.Status, task.Priority,
		task.AssignedTo, task.DueDate, task.UpdatedAt,
	)
	return affectedOne(result, err, "task", task.ID)
}

// Delete deletes a task.
func (r *TasksRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	return affectedOne(result, err, "task", id)
}

// DeleteByTeam deletes every task of a team and returns how many were removed.
func (r *TasksRepository) DeleteByTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE team_id = $1`, teamID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByTeam counts the tasks of a team.
func (r *TasksRepository) CountByTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE team_id = $1`, teamID).Scan(&n)
	return n, err
}

func scanTask(row rowScanner) (*domain.Task, error) {
	task := &domain.Task{}
	err := row.Scan(
		&task.ID, &task.TeamID, &task.Title, &task.Description, &task.Status, &task.Priority,
		&task.CreatedBy, &task.AssignedTo, &task.DueDate, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func affectedOne(result sql.Result, err error, kind string, id uuid.UUID) error {
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound("%s %s not found", kind, id)
	}
	return nil
}
