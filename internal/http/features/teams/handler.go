package teams

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-team-slim/internal/http/features/common"
	"github.com/tendant/simple-team-slim/internal/httputil"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/auth"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/membership"
)

// Handler handles team and membership endpoints.
type Handler struct {
	logger  *logger.Logger
	manager *membership.Manager
}

// NewHandler creates a new teams handler.
func NewHandler(logger *logger.Logger, manager *membership.Manager) *Handler {
	return &Handler{logger: logger, manager: manager}
}

// MemberResponse is one entry of a team's member list.
type MemberResponse struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// TeamResponse represents a team.
type TeamResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	CreatedBy   string           `json:"created_by"`
	Status      string           `json:"status"`
	Version     int64            `json:"version"`
	Members     []MemberResponse `json:"members"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewTeamResponse converts a team for a response body.
func NewTeamResponse(t *domain.Team) TeamResponse {
	members := make([]MemberResponse, len(t.Members))
	for i, m := range t.Members {
		members[i] = MemberResponse{UserID: m.UserID.String(), Role: m.Role.String(), JoinedAt: m.JoinedAt}
	}
	return TeamResponse{
		ID:          t.ID.String(),
		Name:        t.Name,
		Description: t.Description,
		CreatedBy:   t.CreatedBy.String(),
		Status:      string(t.Status),
		Version:     t.Version,
		Members:     members,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NewTeamsResponse converts a list of teams.
func NewTeamsResponse(teams []*domain.Team) []TeamResponse {
	out := make([]TeamResponse, len(teams))
	for i, t := range teams {
		out[i] = NewTeamResponse(t)
	}
	return out
}

// CreateRequest represents a team creation request. LeadID is only honored
// for admins.
type CreateRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description string  `json:"description" validate:"max=2000"`
	LeadID      *string `json:"lead_id" validate:"omitempty,uuid"`
}

// UpdateRequest represents a partial team update.
type UpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Status      *string `json:"status" validate:"omitempty,oneof=active archived"`
}

// AddMemberRequest represents a membership addition.
type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Role   string `json:"role" validate:"omitempty,oneof=LEAD MEMBER"`
}

// TransferLeadershipRequest names the new lead.
type TransferLeadershipRequest struct {
	NewLeadID string `json:"new_lead_id" validate:"required,uuid"`
}

// List returns the caller's teams, or every team with ?all=true (admin).
// GET /v1/teams
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	opts, err := common.ListOptions(r)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	teams, err := h.manager.ListTeams(r.Context(), p, r.URL.Query().Get("all") == "true", opts)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, NewTeamsResponse(teams))
}

// Create creates a team led by the caller, or by lead_id for admins.
// POST /v1/teams
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	var req CreateRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	name, err := auth.CleanName("name", req.Name)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	leadID, err := common.ParseOptionalID("lead_id", req.LeadID)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	team, err := h.manager.CreateTeam(r.Context(), p, membership.CreateTeamInput{
		Name:        name,
		Description: auth.CleanText(req.Description),
		LeadID:      leadID,
	})
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, NewTeamResponse(team))
}

// Get returns one team.
// GET /v1/teams/{teamID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	teamID, ok := common.PathID(w, r, "teamID")
	if !ok {
		return
	}

	team, err := h.manager.GetTeam(r.Context(), p, teamID)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, NewTeamResponse(team))
}

// Update changes a team's name, description or status.
// PATCH /v1/teams/{teamID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	teamID, ok := common.PathID(w, r, "teamID")
	if !ok {
		return
	}
	var req UpdateRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	var in membership.UpdateTeamInput
	if req.Name != nil {
		name, err := auth.CleanName("name", *req.Name)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		in.Name = &name
	}
	if req.Description != nil {
		desc := auth.CleanText(*req.Description)
		in.Description = &desc
	}
	if req.Status != nil {
		status := domain.TeamStatus(*req.Status)
		in.Status = &status
	}

	team, err := h.manager.UpdateTeam(r.Context(), p, teamID, in)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, NewTeamResponse(team))
}

// Delete deletes a team according to the configured delete policy.
// DELETE /v1/teams/{teamID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	teamID, ok := common.PathID(w, r, "teamID")
	if !ok {
		return
	}

	if err := h.manager.DeleteTeam(r.Context(), p, teamID); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddMember adds a user to the team.
// POST /v1/teams/{teamID}/members
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	teamID, ok := common.PathID(w, r, "teamID")
	if !ok {
		return
	}
	var req AddMemberRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	userID, err := common.ParseOptionalID("user_id", &req.UserID)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	role := domain.TeamRoleMember
	if req.Role != "" {
		role, _ = domain.ParseTeamRole(req.Role)
	}

	team, err := h.manager.AddMember(r.Context(), p, teamID, *userID, role)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, NewTeamResponse(team))
}

// RemoveMember removes a user from the team.
// DELETE /v1/teams/{teamID}/members/{userID}
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	teamID, ok := common.PathID(w, r, "teamID")
	if !ok {
		return
	}
	userID, ok := common.PathID(w, r, "userID")
	if !ok {
		return
	}

	team, err := h.manager.RemoveMember(r.Context(), p, teamID, userID)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, NewTeamResponse(team))
}

// TransferLeadership makes another user the team's creator and lead.
// POST /v1/teams/{teamID}/leadership
func (h *Handler) TransferLeadership(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	teamID, ok := common.PathID(w, r, "teamID")
	if !ok {
		return
	}
	var req TransferLeadershipRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	newLeadID, err := common.ParseOptionalID("new_lead_id", &req.NewLeadID)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	team, err := h.manager.TransferLeadership(r.Context(), p, teamID, *newLeadID)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, NewTeamResponse(team))
}

// RegisterRoutes registers team routes on an authenticated router. Writes
// go through the write limiter.
func (h *Handler) RegisterRoutes(r chi.Router, write func(http.Handler) http.Handler) {
	r.Get("/teams", h.List)
	r.Get("/teams/{teamID}", h.Get)
	r.Group(func(r chi.Router) {
		r.Use(write)
		r.Post("/teams", h.Create)
		r.Patch("/teams/{teamID}", h.Update)
		r.Delete("/teams/{teamID}", h.Delete)
		r.Post("/teams/{teamID}/members", h.AddMember)
		r.Delete("/teams/{teamID}/members/{userID}", h.RemoveMember)
		r.Post("/teams/{teamID}/leadership", h.TransferLeadership)
	})
}
