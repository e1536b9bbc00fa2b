package membership

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

const reconcilePageSize = 500

// ReconcileReport counts the repairs made by one reconciliation pass.
type ReconcileReport struct {
	TeamsScanned int           `json:"teams_scanned"`
	UsersScanned int           `json:"users_scanned"`
	Added        int           `json:"added"`
	Pulled       int           `json:"pulled"`
	Duration     time.Duration `json:"duration"`
}

// Reconciler repairs User.Teams drift left by interrupted manager operations.
// Team.Members is the source of truth: a back-reference is added for every
// member of a live team and pulled when the team is gone or no longer lists
// the user. Inactive users are left with no back-references.
type Reconciler struct {
	users repository.UserStore
	teams repository.TeamStore
	log   *logger.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(stores repository.Stores, log *logger.Logger) *Reconciler {
	return &Reconciler{users: stores.Users, teams: stores.Teams, log: log.Named("reconciler")}
}

// Run performs one full pass.
func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()
	report := &ReconcileReport{}

	// members maps each team to its member set as read during the scan.
	members := make(map[uuid.UUID]map[uuid.UUID]struct{})
	for offset := 0; ; offset += reconcilePageSize {
		page, err := r.teams.List(ctx, repository.TeamFilter{
			ListOptions: repository.ListOptions{Limit: reconcilePageSize, Offset: offset},
		})
		if err != nil {
			return nil, err
		}
		for _, t := range page {
			set := make(map[uuid.UUID]struct{}, len(t.Members))
			for _, id := range t.MemberIDs() {
				set[id] = struct{}{}
			}
			members[t.ID] = set
		}
		report.TeamsScanned += len(page)
		if len(page) < reconcilePageSize {
			break
		}
	}

	for offset := 0; ; offset += reconcilePageSize {
		page, err := r.users.List(ctx, repository.ListOptions{Limit: reconcilePageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, u := range page {
			want := make(map[uuid.UUID]struct{})
			if u.IsActive() {
				for teamID, set := range members {
					if _, ok := set[u.ID]; ok {
						want[teamID] = struct{}{}
					}
				}
			}
			for _, teamID := range u.Teams {
				if _, ok := want[teamID]; ok {
					delete(want, teamID)
					continue
				}
				pulled, err := r.pull(ctx, u, teamID)
				if err != nil {
					return nil, err
				}
				if pulled {
					report.Pulled++
				}
			}
			for teamID := range want {
				added, err := r.add(ctx, u.ID, teamID)
				if err != nil {
					return nil, err
				}
				if added {
					report.Added++
				}
			}
		}
		report.UsersScanned += len(page)
		if len(page) < reconcilePageSize {
			break
		}
	}

	report.Duration = time.Since(start)
	r.log.Info("reconciliation finished",
		"teams", report.TeamsScanned, "users", report.UsersScanned,
		"added", report.Added, "pulled", report.Pulled, "duration", report.Duration)
	return report, nil
}

// pull removes a stale back-reference. The team is re-read first, since the
// user may have joined it after the scan.
func (r *Reconciler) pull(ctx context.Context, u *domain.User, teamID uuid.UUID) (bool, error) {
	userID := u.ID
	t, err := r.teams.GetByID(ctx, teamID)
	switch {
	case err == nil && u.IsActive() && t.HasMember(userID):
		return false, nil
	case err != nil && !domain.IsNotFound(err):
		return false, err
	}
	if err := r.users.RemoveTeam(ctx, userID, teamID); err != nil {
		return false, err
	}
	r.log.Info("pulled stale team back-reference", "user_id", userID, "team_id", teamID)
	return true, nil
}

// add restores a missing back-reference. The team and user are re-read
// first, since the user may have left the team or been deactivated after
// the scan.
func (r *Reconciler) add(ctx context.Context, userID, teamID uuid.UUID) (bool, error) {
	t, err := r.teams.GetByID(ctx, teamID)
	if domain.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !t.HasMember(userID) {
		return false, nil
	}
	u, err := r.users.GetByID(ctx, userID)
	if domain.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !u.IsActive() || u.InTeam(teamID) {
		return false, nil
	}
	if err := r.users.AddTeam(ctx, userID, teamID); err != nil {
		return false, err
	}
	r.log.Info("added missing team back-reference", "user_id", userID, "team_id", teamID)
	return true, nil
}
