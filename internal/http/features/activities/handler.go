package activities

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/internal/http/features/common"
	"github.com/tendant/simple-team-slim/internal/httputil"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/activity"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// Handler serves the activity ledger.
type Handler struct {
	logger   *logger.Logger
	reporter *activity.Reporter
}

// NewHandler creates a new activities handler.
func NewHandler(logger *logger.Logger, reporter *activity.Reporter) *Handler {
	return &Handler{logger: logger, reporter: reporter}
}

func filterFrom(r *http.Request, teamID *uuid.UUID) (domain.ActivityFilter, error) {
	opts, err := common.ListOptions(r)
	if err != nil {
		return domain.ActivityFilter{}, err
	}
	return domain.ActivityFilter{
		TeamID: teamID,
		Type:   domain.ActivityType(r.URL.Query().Get("type")),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, teamID *uuid.UUID) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	filter, err := filterFrom(r, teamID)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	entries, err := h.reporter.List(r.Context(), p, filter)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []*domain.Activity{}
	}
	httputil.JSON(w, http.StatusOK, entries)
}

// ListByTeam returns a team's ledger, newest first.
// GET /v1/teams/{teamID}/activities
func (h *Handler) ListByTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := common.PathID(w, r, "teamID")
	if !ok {
		return
	}
	h.list(w, r, &teamID)
}

// ListAll returns the global ledger (admin).
// GET /v1/activities
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, nil)
}

// Summary counts entries per type, for one team with ?team_id= or globally.
// GET /v1/activities/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	var teamID *uuid.UUID
	if v := r.URL.Query().Get("team_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid team_id")
			return
		}
		teamID = &id
	}

	summary, err := h.reporter.Summary(r.Context(), p, teamID)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, summary)
}

// RegisterRoutes registers ledger routes on an authenticated router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/teams/{teamID}/activities", h.ListByTeam)
	r.Get("/activities", h.ListAll)
	r.Get("/activities/summary", h.Summary)
}
