// Package membership performs the multi-record writes that keep
// Team.Members and User.Teams mutual inverses.
//
// Every operation authorizes and validates before its first write. Team
// writes are compare-and-swap on Team.Version and are retried on a lost race.
// User.Teams changes are single-statement set operations. Each operation is
// idempotent, so a caller that sees an error after a partial write can retry
// the same call and converge; the Reconciler repairs anything left behind.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/activity"
	"github.com/tendant/simple-team-slim/pkg/authz"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

const (
	msgInactiveUser    = "Cannot add an inactive user"
	msgAlreadyMember   = "User is already a member of this team"
	msgTeamHasContents = "Team still has tasks, meetings, or files"
)

// PrincipalInvalidator drops a cached principal after its role or status changes.
type PrincipalInvalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// Config configures a Manager.
type Config struct {
	// MaxRetries is how many times a team write is retried after losing a
	// compare-and-swap (default: 3).
	MaxRetries int

	// DeletePolicy decides what happens to a deleted team's tasks, meetings
	// and files (default: DeleteOrphan).
	DeletePolicy DeletePolicy
}

// Manager owns every write to Team.Members and User.Teams.
type Manager struct {
	cfg      Config
	users    repository.UserStore
	teams    repository.TeamStore
	tasks    repository.TaskStore
	meetings repository.MeetingStore
	files    repository.FileStore
	emitter  activity.Emitter
	cache    PrincipalInvalidator
	log      *logger.Logger
	now      func() time.Time
}

// NewManager creates a Manager. cache may be nil.
func NewManager(cfg Config, stores repository.Stores, emitter activity.Emitter, cache PrincipalInvalidator, log *logger.Logger) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.DeletePolicy == "" {
		cfg.DeletePolicy = DeleteOrphan
	}
	if emitter == nil {
		emitter = activity.Discard{}
	}
	return &Manager{
		cfg:      cfg,
		users:    stores.Users,
		teams:    stores.Teams,
		tasks:    stores.Tasks,
		meetings: stores.Meetings,
		files:    stores.Files,
		emitter:  emitter,
		cache:    cache,
		log:      log.Named("membership"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateTeamInput holds the fields of a new team. LeadID is honored only for
// admins; everyone else becomes the lead of the team they create.
type CreateTeamInput struct {
	Name        string
	Description string
	LeadID      *uuid.UUID
}

// CreateTeam creates a team whose creator and sole member is the resolved lead.
func (m *Manager) CreateTeam(ctx context.Context, p domain.Principal, in CreateTeamInput) (*domain.Team, error) {
	const op = "create_team"
	if err := authz.CreateTeam(p).Err(); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, domain.ErrValidation("team name is required")
	}

	leadID := p.UserID
	if p.IsAdmin() && in.LeadID != nil && *in.LeadID != p.UserID {
		lead, err := m.users.GetByID(ctx, *in.LeadID)
		if err != nil {
			return nil, m.fail(ctx, op, uuid.Nil, *in.LeadID, err)
		}
		if !lead.IsActive() {
			return nil, domain.ErrInvalidState("%s", msgInactiveUser)
		}
		if err := authz.CheckLeadEligible(lead, authz.ReasonDesignatedLeadRole); err != nil {
			return nil, err
		}
		leadID = lead.ID
	}

	now := m.now()
	team := &domain.Team{
		ID:          uuid.New(),
		Name:        in.Name,
		Description: in.Description,
		CreatedBy:   leadID,
		Members:     []domain.Member{{UserID: leadID, Role: domain.TeamRoleLead, JoinedAt: now}},
		Status:      domain.TeamStatusActive,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.teams.Create(ctx, team); err != nil {
		return nil, m.fail(ctx, op, team.ID, leadID, err)
	}
	if err := m.users.AddTeam(ctx, leadID, team.ID); err != nil {
		return nil, m.fail(ctx, op, team.ID, leadID, err)
	}

	m.emit(ctx, team.ID, p.UserID, domain.ActivityTeamCreated,
		fmt.Sprintf("Created team %s", team.Name), team.ID.String())
	return team, nil
}

// GetTeam returns a team the principal may view.
func (m *Manager) GetTeam(ctx context.Context, p domain.Principal, teamID uuid.UUID) (*domain.Team, error) {
	team, err := m.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := authz.Team(p, team, authz.TeamView).Err(); err != nil {
		return nil, err
	}
	return team, nil
}

// ListTeams lists the principal's own teams, or every team when all is set
// and the principal is an admin.
func (m *Manager) ListTeams(ctx context.Context, p domain.Principal, all bool, opts repository.ListOptions) ([]*domain.Team, error) {
	filter := repository.TeamFilter{ListOptions: opts}
	if all {
		if err := authz.System(p, authz.ViewAllTeams).Err(); err != nil {
			return nil, err
		}
	} else {
		if !p.IsActive() {
			return nil, domain.ErrForbidden(authz.ReasonInactive)
		}
		filter.MemberID = &p.UserID
	}
	return m.teams.List(ctx, filter)
}

// UpdateTeamInput is a partial update. Nil fields are left unchanged.
type UpdateTeamInput struct {
	Name        *string
	Description *string
	Status      *domain.TeamStatus
}

// UpdateTeam changes a team's name, description or status.
func (m *Manager) UpdateTeam(ctx context.Context, p domain.Principal, teamID uuid.UUID, in UpdateTeamInput) (*domain.Team, error) {
	const op = "update_team"
	if in.Name != nil && *in.Name == "" {
		return nil, domain.ErrValidation("team name cannot be empty")
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, domain.ErrValidation("invalid team status %q", *in.Status)
	}

	team, changed, err := m.mutate(ctx, teamID, func(t *domain.Team) (bool, error) {
		if err := authz.Team(p, t, authz.TeamUpdate).Err(); err != nil {
			return false, err
		}
		changed := false
		if in.Name != nil && *in.Name != t.Name {
			t.Name, changed = *in.Name, true
		}
		if in.Description != nil && *in.Description != t.Description {
			t.Description, changed = *in.Description, true
		}
		if in.Status != nil && *in.Status != t.Status {
			t.Status, changed = *in.Status, true
		}
		return changed, nil
	})
	if err != nil {
		return nil, m.fail(ctx, op, teamID, p.UserID, err)
	}
	if changed {
		m.emit(ctx, team.ID, p.UserID, domain.ActivityTeamUpdated,
			fmt.Sprintf("Updated team %s", team.Name), team.ID.String())
	}
	return team, nil
}

// AddMember adds userID to the team with role. A repeated call for a member
// that is already present repairs the user's back-reference and then reports
// InvalidState.
func (m *Manager) AddMember(ctx context.Context, p domain.Principal, teamID, userID uuid.UUID, role domain.TeamRole) (*domain.Team, error) {
	const op = "add_member"
	if role == 0 {
		role = domain.TeamRoleMember
	}
	if !role.Valid() {
		return nil, domain.ErrValidation("invalid team role")
	}

	// Authorize before revealing whether the user exists.
	team, err := m.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, m.fail(ctx, op, teamID, userID, err)
	}
	if err := authz.Team(p, team, authz.TeamAddMember).Err(); err != nil {
		return nil, err
	}
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return nil, m.fail(ctx, op, teamID, userID, err)
	}
	if !user.IsActive() {
		return nil, domain.ErrInvalidState("%s", msgInactiveUser)
	}

	duplicate := false
	team, _, err = m.mutate(ctx, teamID, func(t *domain.Team) (bool, error) {
		if err := authz.Team(p, t, authz.TeamAddMember).Err(); err != nil {
			return false, err
		}
		duplicate = !t.AddMember(userID, role, m.now())
		return !duplicate, nil
	})
	if err != nil {
		return nil, m.fail(ctx, op, teamID, userID, err)
	}
	if err := m.users.AddTeam(ctx, userID, teamID); err != nil {
		return nil, m.fail(ctx, op, teamID, userID, err)
	}
	if duplicate {
		return nil, domain.ErrInvalidState("%s", msgAlreadyMember)
	}

	m.emit(ctx, teamID, p.UserID, domain.ActivityMemberAdded,
		fmt.Sprintf("Added %s to team %s as %s", user.Name, team.Name, role), userID.String())
	return team, nil
}

// RemoveMember removes userID from the team. Removing someone who is not a
// member succeeds without a write to the team.
func (m *Manager) RemoveMember(ctx context.Context, p domain.Principal, teamID, userID uuid.UUID) (*domain.Team, error) {
	const op = "remove_member"
	team, removed, err := m.mutate(ctx, teamID, func(t *domain.Team) (bool, error) {
		// The creator can never be removed, whoever asks.
		if err := authz.CheckRemoveTarget(t, userID); err != nil {
			return false, err
		}
		if err := authz.Team(p, t, authz.TeamRemoveMember).Err(); err != nil {
			return false, err
		}
		return t.RemoveMember(userID), nil
	})
	if err != nil {
		return nil, m.fail(ctx, op, teamID, userID, err)
	}
	if err := m.pullTeam(ctx, userID, teamID); err != nil {
		return nil, m.fail(ctx, op, teamID, userID, err)
	}
	if removed {
		m.emit(ctx, teamID, p.UserID, domain.ActivityMemberRemoved,
			fmt.Sprintf("Removed %s from team %s", userID, team.Name), userID.String())
	}
	return team, nil
}

// TransferLeadership makes newLeadID the team's creator and only in-team
// LEAD, demoting every other lead to MEMBER.
func (m *Manager) TransferLeadership(ctx context.Context, p domain.Principal, teamID, newLeadID uuid.UUID) (*domain.Team, error) {
	const op = "transfer_leadership"
	team, err := m.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, m.fail(ctx, op, teamID, newLeadID, err)
	}
	if err := authz.Team(p, team, authz.TeamTransferLeadership).Err(); err != nil {
		return nil, err
	}
	target, err := m.users.GetByID(ctx, newLeadID)
	if err != nil {
		return nil, m.fail(ctx, op, teamID, newLeadID, err)
	}
	if err := authz.CheckLeadEligible(target, authz.ReasonNewLeadRole); err != nil {
		return nil, err
	}
	if !target.IsActive() {
		return nil, domain.ErrInvalidState("%s", msgInactiveUser)
	}

	team, changed, err := m.mutate(ctx, teamID, func(t *domain.Team) (bool, error) {
		if err := authz.Team(p, t, authz.TeamTransferLeadership).Err(); err != nil {
			return false, err
		}
		changed, _ := t.TransferLeadership(newLeadID, m.now())
		return changed, nil
	})
	if err != nil {
		return nil, m.fail(ctx, op, teamID, newLeadID, err)
	}
	if err := m.users.AddTeam(ctx, newLeadID, teamID); err != nil {
		return nil, m.fail(ctx, op, teamID, newLeadID, err)
	}
	if changed {
		m.emit(ctx, teamID, p.UserID, domain.ActivityLeadershipTransferred,
			fmt.Sprintf("Transferred leadership of team %s to %s", team.Name, target.Name), newLeadID.String())
	}
	return team, nil
}

// DeactivateUser removes the user from every team, clears their
// back-references and marks the account inactive.
func (m *Manager) DeactivateUser(ctx context.Context, p domain.Principal, userID uuid.UUID) (*domain.User, error) {
	const op = "deactivate_user"
	if err := authz.System(p, authz.DeactivateUser).Err(); err != nil {
		return nil, err
	}
	if err := authz.CheckSelfProtection(p, userID, authz.DeactivateUser); err != nil {
		return nil, err
	}
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return nil, m.fail(ctx, op, uuid.Nil, userID, err)
	}

	teams, err := m.teams.List(ctx, repository.TeamFilter{MemberID: &userID})
	if err != nil {
		return nil, m.fail(ctx, op, uuid.Nil, userID, err)
	}
	for _, t := range teams {
		_, removed, err := m.mutate(ctx, t.ID, func(t *domain.Team) (bool, error) {
			return t.RemoveMember(userID), nil
		})
		if domain.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, m.fail(ctx, op, t.ID, userID, err)
		}
		if removed {
			m.emit(ctx, t.ID, p.UserID, domain.ActivityMemberRemoved,
				fmt.Sprintf("Removed %s from team %s on deactivation", user.Name, t.Name), userID.String())
		}
	}

	if err := m.users.Deactivate(ctx, userID); err != nil {
		return nil, m.fail(ctx, op, uuid.Nil, userID, err)
	}
	m.invalidate(ctx, userID)

	if user.IsActive() || len(user.Teams) > 0 {
		m.emit(ctx, uuid.Nil, p.UserID, domain.ActivityUserDeactivated,
			fmt.Sprintf("Deactivated user %s", user.Email), userID.String())
	}
	user.Status = domain.UserStatusInactive
	user.Teams = nil
	return user, nil
}

// mutate reads the team, applies fn and writes the result with a
// compare-and-swap on Version. A lost race re-reads and re-applies fn, up to
// MaxRetries times. fn reports false when there is nothing to write; the
// team is then returned unchanged.
func (m *Manager) mutate(ctx context.Context, teamID uuid.UUID, fn func(*domain.Team) (bool, error)) (*domain.Team, bool, error) {
	for attempt := 0; ; attempt++ {
		team, err := m.teams.GetByID(ctx, teamID)
		if err != nil {
			return nil, false, err
		}
		expected := team.Version
		changed, err := fn(team)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return team, false, nil
		}
		team.UpdatedAt = m.now()
		err = m.teams.Update(ctx, team, expected)
		if err == nil {
			return team, true, nil
		}
		if !domain.IsConflict(err) || attempt >= m.cfg.MaxRetries {
			return nil, false, err
		}
		m.log.WithContext(ctx).Debug("team version moved, retrying",
			"team_id", teamID, "expected_version", expected, "attempt", attempt+1)
	}
}

// pullTeam removes teamID from the user's back-references. A user that no
// longer exists has nothing to pull.
func (m *Manager) pullTeam(ctx context.Context, userID, teamID uuid.UUID) error {
	err := m.users.RemoveTeam(ctx, userID, teamID)
	if domain.IsNotFound(err) {
		return nil
	}
	return err
}

func (m *Manager) emit(ctx context.Context, teamID, actorID uuid.UUID, typ domain.ActivityType, description, relatedID string) {
	m.emitter.Emit(ctx, activity.New(teamID, actorID, typ, description, relatedID))
}

func (m *Manager) invalidate(ctx context.Context, userID uuid.UUID) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx, userID); err != nil {
		m.log.WithContext(ctx).Warn("failed to invalidate cached principal", "user_id", userID, "error", err)
	}
}

// fail returns err unchanged when it is a domain error the caller can act
// on. Anything else is logged with enough context for manual reconciliation.
func (m *Manager) fail(ctx context.Context, op string, teamID, userID uuid.UUID, err error) error {
	if IsDomainError(err) {
		return err
	}
	m.log.WithContext(ctx).Error("membership operation failed",
		"operation", op, "team_id", teamID, "user_id", userID, "error", err)
	return fmt.Errorf("%s: %w", op, err)
}

// IsDomainError reports whether err is one of the typed domain errors rather
// than an unexpected failure.
func IsDomainError(err error) bool {
	var (
		nf *domain.NotFoundError
		fb *domain.ForbiddenError
		is *domain.InvalidStateError
		va *domain.ValidationError
		cf *domain.ConflictError
	)
	return errors.As(err, &nf) || errors.As(err, &fb) || errors.As(err, &is) ||
		errors.As(err, &va) || errors.As(err, &cf)
}
