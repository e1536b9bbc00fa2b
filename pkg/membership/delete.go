package membership

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/authz"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// DeletePolicy decides what happens to the tasks, meetings and files of a
// deleted team.
type DeletePolicy string

const (
	// DeleteOrphan leaves dependents in place. They remain reachable through
	// the admin-wide listings only.
	DeleteOrphan DeletePolicy = "orphan"
	// DeleteCascade removes dependents after the team record.
	DeleteCascade DeletePolicy = "cascade"
	// DeleteReject refuses to delete a team that still has dependents.
	DeleteReject DeletePolicy = "reject"
)

// ParseDeletePolicy parses a policy name.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch p := DeletePolicy(s); p {
	case DeleteOrphan, DeleteCascade, DeleteReject:
		return p, nil
	}
	return "", fmt.Errorf("unknown team delete policy %q", s)
}

// maxParallelPulls bounds concurrent back-reference writes in DeleteTeam.
const maxParallelPulls = 8

// DeleteTeam pulls the team from every member's back-references, then
// deletes the team record and applies the configured DeletePolicy.
func (m *Manager) DeleteTeam(ctx context.Context, p domain.Principal, teamID uuid.UUID) error {
	const op = "delete_team"
	team, err := m.teams.GetByID(ctx, teamID)
	if err != nil {
		return m.fail(ctx, op, teamID, p.UserID, err)
	}
	if err := authz.Team(p, team, authz.TeamDelete).Err(); err != nil {
		return err
	}
	if m.cfg.DeletePolicy == DeleteReject {
		n, err := m.dependents(ctx, teamID)
		if err != nil {
			return m.fail(ctx, op, teamID, p.UserID, err)
		}
		if n > 0 {
			return domain.ErrInvalidState("%s", msgTeamHasContents)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPulls)
	for _, id := range team.MemberIDs() {
		g.Go(func() error {
			if err := m.pullTeam(gctx, id, teamID); err != nil {
				return m.fail(gctx, op, teamID, id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := m.teams.Delete(ctx, teamID); err != nil {
		if domain.IsNotFound(err) {
			// A concurrent delete won; the back-references are already pulled.
			return nil
		}
		return m.fail(ctx, op, teamID, p.UserID, err)
	}

	if m.cfg.DeletePolicy == DeleteCascade {
		m.cascade(ctx, teamID)
	}

	m.emit(ctx, teamID, p.UserID, domain.ActivityTeamDeleted,
		fmt.Sprintf("Deleted team %s", team.Name), teamID.String())
	return nil
}

func (m *Manager) dependents(ctx context.Context, teamID uuid.UUID) (int64, error) {
	var total int64
	for _, count := range []func(context.Context, uuid.UUID) (int64, error){
		m.tasks.CountByTeam,
		m.meetings.CountByTeam,
		m.files.CountByTeam,
	} {
		n, err := count(ctx, teamID)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// cascade deletes a removed team's dependents. Failures are logged and left
// for an operator; the team itself is already gone.
func (m *Manager) cascade(ctx context.Context, teamID uuid.UUID) {
	log := m.log.WithContext(ctx).With("team_id", teamID)
	for kind, del := range map[string]func(context.Context, uuid.UUID) (int64, error){
		"tasks":    m.tasks.DeleteByTeam,
		"meetings": m.meetings.DeleteByTeam,
		"files":    m.files.DeleteByTeam,
	} {
		n, err := del(ctx, teamID)
		if err != nil {
			log.Error("failed to delete team dependents", "operation", "delete_team", "kind", kind, "error", err)
			continue
		}
		if n > 0 {
			log.Info("deleted team dependents", "kind", kind, "count", n)
		}
	}
}
