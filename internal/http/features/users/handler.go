package users

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-team-slim/internal/http/features/common"
	"github.com/tendant/simple-team-slim/internal/httputil"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/users"
)

// Handler handles account administration endpoints.
type Handler struct {
	logger *logger.Logger
	users  *users.Service
}

// NewHandler creates a new users handler.
func NewHandler(logger *logger.Logger, svc *users.Service) *Handler {
	return &Handler{logger: logger, users: svc}
}

// UserResponse represents an account.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	Teams     []string  `json:"teams"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUserResponse converts a user for a response body.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role.String(),
		Status:    string(u.Status),
		Teams:     common.IDStrings(u.Teams),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// CreateRequest represents an account creation request.
type CreateRequest struct {
	Email string `json:"email" validate:"required,max=254"`
	Name  string `json:"name" validate:"required,max=100"`
	Role  string `json:"role" validate:"omitempty,oneof=ADMIN LEAD MEMBER"`
}

// ChangeRoleRequest represents a global role change.
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=ADMIN LEAD MEMBER"`
}

// List returns every account (admin).
// GET /v1/users
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

	list, err := h.users.List(r.Context(), p, opts)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	out := make([]UserResponse, len(list))
	for i, u := range list {
		out[i] = NewUserResponse(u)
	}
	httputil.JSON(w, http.StatusOK, out)
}

// Create adds an account (admin).
// POST /v1/users
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

	user, err := h.users.Create(r.Context(), p, users.CreateInput{Email: req.Email, Name: req.Name, Role: req.Role})
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, NewUserResponse(user))
}

// Get returns an account.
// GET /v1/users/{userID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "userID")
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), p, id)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, NewUserResponse(user))
}

// ChangeRole sets a user's global role (admin).
// PATCH /v1/users/{userID}/role
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "userID")
	if !ok {
		return
	}
	var req ChangeRoleRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	user, err := h.users.ChangeRole(r.Context(), p, id, req.Role)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, NewUserResponse(user))
}

// Deactivate marks an account inactive and removes it from every team (admin).
// POST /v1/users/{userID}/deactivate
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "userID")
	if !ok {
		return
	}

	user, err := h.users.Deactivate(r.Context(), p, id)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, NewUserResponse(user))
}

// RegisterRoutes registers account routes on an authenticated router.
func (h *Handler) RegisterRoutes(r chi.Router, write func(http.Handler) http.Handler) {
	r.Get("/users", h.List)
	r.Get("/users/{userID}", h.Get)
	r.Group(func(r chi.Router) {
		r.Use(write)
		r.Post("/users", h.Create)
		r.Patch("/users/{userID}/role", h.ChangeRole)
		r.Post("/users/{userID}/deactivate", h.Deactivate)
	})
}
