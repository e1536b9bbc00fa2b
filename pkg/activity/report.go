package activity

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/authz"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Summary counts ledger entries per activity type.
type Summary struct {
	TeamID *uuid.UUID             `json:"team_id,omitempty"`
	Total  int64                  `json:"total"`
	Counts []domain.ActivityCount `json:"counts"`
}

// Reporter reads the ledger on behalf of a principal.
type Reporter struct {
	teams  repository.TeamStore
	ledger repository.ActivityStore
}

// NewReporter creates a Reporter.
func NewReporter(teams repository.TeamStore, ledger repository.ActivityStore) *Reporter {
	return &Reporter{teams: teams, ledger: ledger}
}

// List returns ledger entries newest first. A nil filter.TeamID reads the
// global ledger, which only admins may do.
func (r *Reporter) List(ctx context.Context, p domain.Principal, filter domain.ActivityFilter) ([]*domain.Activity, error) {
	if err := r.authorize(ctx, p, filter.TeamID); err != nil {
		return nil, err
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultPageSize
	case filter.Limit > maxPageSize:
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return r.ledger.List(ctx, filter)
}

// Summary returns per-type counts for one team or, for admins, the whole ledger.
func (r *Reporter) Summary(ctx context.Context, p domain.Principal, teamID *uuid.UUID) (*Summary, error) {
	if err := r.authorize(ctx, p, teamID); err != nil {
		return nil, err
	}
	counts, err := r.ledger.CountByType(ctx, teamID)
	if err != nil {
		return nil, err
	}
	s := &Summary{TeamID: teamID, Counts: counts}
	for _, c := range counts {
		s.Total += c.Count
	}
	return s, nil
}

func (r *Reporter) authorize(ctx context.Context, p domain.Principal, teamID *uuid.UUID) error {
	if teamID == nil {
		return authz.System(p, authz.ViewAllActivities).Err()
	}
	team, err := r.teams.GetByID(ctx, *teamID)
	if err != nil {
		return err
	}
	return authz.Team(p, team, authz.TeamView).Err()
}
