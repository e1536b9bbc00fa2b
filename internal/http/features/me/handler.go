package me

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-team-slim/internal/http/features/common"
	"github.com/tendant/simple-team-slim/internal/http/features/teams"
	"github.com/tendant/simple-team-slim/internal/http/features/users"
	"github.com/tendant/simple-team-slim/internal/httputil"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/membership"
	"github.com/tendant/simple-team-slim/pkg/repository"
	userssvc "github.com/tendant/simple-team-slim/pkg/users"
)

// Handler handles the caller's own profile.
type Handler struct {
	logger  *logger.Logger
	users   *userssvc.Service
	manager *membership.Manager
}

// NewHandler creates a new me handler.
func NewHandler(logger *logger.Logger, users *userssvc.Service, manager *membership.Manager) *Handler {
	return &Handler{logger: logger, users: users, manager: manager}
}

// MeResponse is the caller's account together with the teams it belongs to.
type MeResponse struct {
	users.UserResponse
	Memberships []teams.TeamResponse `json:"memberships"`
}

// GetMe returns the current user's profile and teams.
// GET /v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), p, p.UserID)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	list, err := h.manager.ListTeams(r.Context(), p, false, repository.ListOptions{})
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, MeResponse{
		UserResponse: users.NewUserResponse(user),
		Memberships:  teams.NewTeamsResponse(list),
	})
}

// RegisterRoutes registers profile routes on an authenticated router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.GetMe)
}
