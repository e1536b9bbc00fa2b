// Package work manages the tasks, meetings and files a team owns. Each
// operation resolves the owning team, asks authz for a decision and then
// writes a single record.
package work

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/activity"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// base holds what every work service needs.
type base struct {
	teams   repository.TeamStore
	emitter activity.Emitter
	now     func() time.Time
}

func newBase(teams repository.TeamStore, emitter activity.Emitter) base {
	if emitter == nil {
		emitter = activity.Discard{}
	}
	return base{
		teams:   teams,
		emitter: emitter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// team resolves the owning team. A record whose team was deleted under the
// orphan policy resolves to a bare team for admins, so only the admin
// override can allow access to it.
func (b base) team(ctx context.Context, p domain.Principal, teamID uuid.UUID) (*domain.Team, error) {
	team, err := b.teams.GetByID(ctx, teamID)
	if domain.IsNotFound(err) && p.IsAdmin() {
		return &domain.Team{ID: teamID}, nil
	}
	return team, err
}

// liveTeam resolves a team that must exist, for operations that create records.
func (b base) liveTeam(ctx context.Context, teamID uuid.UUID) (*domain.Team, error) {
	return b.teams.GetByID(ctx, teamID)
}

func (b base) emit(ctx context.Context, teamID, actorID uuid.UUID, typ domain.ActivityType, description string, relatedID uuid.UUID) {
	b.emitter.Emit(ctx, activity.New(teamID, actorID, typ, description, relatedID.String()))
}

func page(opts repository.ListOptions) repository.ListOptions {
	switch {
	case opts.Limit <= 0:
		opts.Limit = defaultPageSize
	case opts.Limit > maxPageSize:
		opts.Limit = maxPageSize
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts
}

// checkMembers rejects ids that are not members of t.
func checkMembers(t *domain.Team, ids []uuid.UUID, msg string) error {
	if slices.ContainsFunc(ids, func(id uuid.UUID) bool { return !t.HasMember(id) }) {
		return domain.ErrInvalidState("%s", msg)
	}
	return nil
}
