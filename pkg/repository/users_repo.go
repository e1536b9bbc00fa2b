package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// UsersRepository handles user persistence.
type UsersRepository struct {
	db *sql.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

var _ UserStore = (*UsersRepository)(nil)

const userColumns = `id, email, name, role, status, teams, created_at, updated_at`

// Create creates a new user.
func (r *UsersRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, role, status, teams, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.Role, user.Status,
		pq.Array(uuidStrings(user.Teams)), user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate("a user with email %s already exists", user.Email)
	}
	return err
}

// GetByID retrieves a user by ID.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("user %s not found", id)
	}
	return user, err
}

// GetByEmail retrieves a user by email.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("user %s not found", email)
	}
	return user, err
}

// List returns users ordered by creation time.
func (r *UsersRepository) List(ctx context.Context, opts ListOptions) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limitArg(opts.Limit), opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetRole changes a user's global role.
func (r *UsersRepository) SetRole(ctx context.Context, id uuid.UUID, role domain.Role) error {
	query := `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, role, time.Now())
	return affectedOne(result, err, "user", id)
}

// Deactivate marks the user inactive and clears the team back-references.
func (r *UsersRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET status = 'inactive', teams = '{}', updated_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	return affectedOne(result, err, "user", id)
}

// AddTeam adds teamID to the user's teams if absent.
func (r *UsersRepository) AddTeam(ctx context.Context, userID, teamID uuid.UUID) error {
	query := `
		UPDATE users
		SET teams = CASE WHEN $2::uuid = ANY(teams) THEN teams ELSE array_append(teams, $2::uuid) END,
		    updated_at = $3
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, userID, teamID, time.Now())
	return affectedOne(result, err, "user", userID)
}

// RemoveTeam removes every occurrence of teamID from the user's teams.
func (r *UsersRepository) RemoveTeam(ctx context.Context, userID, teamID uuid.UUID) error {
	query := `UPDATE users SET teams = array_remove(teams, $2::uuid), updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, userID, teamID, time.Now())
	return affectedOne(result, err, "user", userID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var teams []string
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.Role, &user.Status,
		pq.Array(&teams), &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if user.Teams, err = parseUUIDs(teams); err != nil {
		return nil, err
	}
	return user, nil
}
