package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// ListOptions pages a list query. A zero Limit means no limit.
type ListOptions struct {
	Limit  int
	Offset int
}

// TeamFilter narrows a team listing. A nil MemberID lists every team.
type TeamFilter struct {
	MemberID *uuid.UUID
	ListOptions
}

// UserStore persists users. Teams is only changed through the set operations
// AddTeam and RemoveTeam, each atomic on a single row.
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, opts ListOptions) ([]*domain.User, error)
	SetRole(ctx context.Context, id uuid.UUID, role domain.Role) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	AddTeam(ctx context.Context, userID, teamID uuid.UUID) error
	RemoveTeam(ctx context.Context, userID, teamID uuid.UUID) error
}

// TeamStore persists teams. Update is a compare-and-swap on Version.
type TeamStore interface {
	Create(ctx context.Context, team *domain.Team) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Team, error)
	List(ctx context.Context, filter TeamFilter) ([]*domain.Team, error)
	// Update writes team if the stored version equals expected and bumps
	// team.Version. A mismatch returns a retryable ConflictError.
	Update(ctx context.Context, team *domain.Team, expected int64) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// TaskStore persists tasks. A nil teamID on List reads across all teams.
type TaskStore interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	List(ctx context.Context, teamID *uuid.UUID, opts ListOptions) ([]*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByTeam(ctx context.Context, teamID uuid.UUID) (int64, error)
	CountByTeam(ctx context.Context, teamID uuid.UUID) (int64, error)
}

// MeetingStore persists meetings.
type MeetingStore interface {
	Create(ctx context.Context, meeting *domain.Meeting) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Meeting, error)
	List(ctx context.Context, teamID *uuid.UUID, opts ListOptions) ([]*domain.Meeting, error)
	Update(ctx context.Context, meeting *domain.Meeting) error
	// AddParticipant adds userID once in a single statement.
	AddParticipant(ctx context.Context, id, userID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByTeam(ctx context.Context, teamID uuid.UUID) (int64, error)
	CountByTeam(ctx context.Context, teamID uuid.UUID) (int64, error)
}

// FileStore persists file metadata.
type FileStore interface {
	Create(ctx context.Context, file *domain.File) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error)
	List(ctx context.Context, teamID *uuid.UUID, opts ListOptions) ([]*domain.File, error)
	Update(ctx context.Context, file *domain.File) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByTeam(ctx context.Context, teamID uuid.UUID) (int64, error)
	CountByTeam(ctx context.Context, teamID uuid.UUID) (int64, error)
}

// ActivityStore is the append-only ledger. Append ignores an id it has
// already stored so redelivered events are harmless.
type ActivityStore interface {
	Append(ctx context.Context, activity *domain.Activity) error
	List(ctx context.Context, filter domain.ActivityFilter) ([]*domain.Activity, error)
	CountByType(ctx context.Context, teamID *uuid.UUID) ([]domain.ActivityCount, error)
}

// Stores groups every store the services need.
type Stores struct {
	Users      UserStore
	Teams      TeamStore
	Tasks      TaskStore
	Meetings   MeetingStore
	Files      FileStore
	Activities ActivityStore
}

// NewPostgresStores builds every store on db.
func NewPostgresStores(db *sql.DB) Stores {
	return Stores{
		Users:      NewUsersRepository(db),
		Teams:      NewTeamsRepository(db),
		Tasks:      NewTasksRepository(db),
		Meetings:   NewMeetingsRepository(db),
		Files:      NewFilesRepository(db),
		Activities: NewActivitiesRepository(db),
	}
}
