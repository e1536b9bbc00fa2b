package tasks

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-team-slim/internal/http/features/common"
	"github.com/tendant/simple-team-slim/internal/httputil"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/auth"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/work"
)

// Handler handles task endpoints.
type Handler struct {
	logger *logger.Logger
	tasks  *work.TaskService
}

// NewHandler creates a new tasks handler.
func NewHandler(logger *logger.Logger, tasks *work.TaskService) *Handler {
	return &Handler{logger: logger, tasks: tasks}
}

// TaskResponse represents a task.
type TaskResponse struct {
	ID          string     `json:"id"`
	TeamID      string     `json:"team_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	CreatedBy   string     `json:"created_by"`
	AssignedTo  *string    `json:"assigned_to,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func newTaskResponse(t *domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID.String(),
		TeamID:      t.TeamID.String(),
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		CreatedBy:   t.CreatedBy.String(),
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.AssignedTo != nil {
		s := t.AssignedTo.String()
		resp.AssignedTo = &s
	}
	return resp
}

func newTasksResponse(tasks []*domain.Task) []TaskResponse {
	out := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		out[i] = newTaskResponse(t)
	}
	return out
}

// CreateRequest represents a task creation request.
type CreateRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	Status      string     `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	AssignedTo  *string    `json:"assigned_to" validate:"omitempty,uuid"`
	DueDate     *time.Time `json:"due_date"`
}

// UpdateRequest represents a partial task update. Unassign clears the assignee.
type UpdateRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Status      *string    `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	AssignedTo  *string    `json:"assigned_to" validate:"omitempty,uuid"`
	Unassign    bool       `json:"unassign"`
	DueDate     *time.Time `json:"due_date"`
}

// ListByTeam lists a team's tasks.
// GET /v1/teams/{teamID}/tasks
func (h *Handler) ListByTeam(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	teamID, ok := common.PathID(w, r, "teamID")
	if !ok {
		return
	}
	opts, err := common.ListOptions(r)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	tasks, err := h.tasks.ListByTeam(r.Context(), p, teamID, opts)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, newTasksResponse(tasks))
}

// ListAll lists every task, including those of deleted teams (admin).
// GET /v1/tasks
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	opts, err := common.ListOptions(r)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	tasks, err := h.tasks.ListAll(r.Context(), p, opts)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, newTasksResponse(tasks))
}

// Create adds a task to a team.
// POST /v1/teams/{teamID}/tasks
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	teamID, ok := common.PathID(w, r, "teamID")
	if !ok {
		return
	}
	var req CreateRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	assignee, err := common.ParseOptionalID("assigned_to", req.AssignedTo)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), p, teamID, work.CreateTaskInput{
		Title:       auth.CleanText(req.Title),
		Description: auth.CleanText(req.Description),
		Status:      domain.TaskStatus(req.Status),
		Priority:    domain.TaskPriority(req.Priority),
		AssignedTo:  assignee,
		DueDate:     req.DueDate,
	})
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, newTaskResponse(task))
}

// Get returns one task.
// GET /v1/tasks/{taskID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "taskID")
	if !ok {
		return
	}

	task, err := h.tasks.Get(r.Context(), p, id)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, newTaskResponse(task))
}

// Update changes a task.
// PATCH /v1/tasks/{taskID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "taskID")
	if !ok {
		return
	}
	var req UpdateRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	assignee, err := common.ParseOptionalID("assigned_to", req.AssignedTo)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	in := work.UpdateTaskInput{
		AssignedTo: assignee,
		Unassign:   req.Unassign,
		DueDate:    req.DueDate,
	}
	if req.Title != nil {
		title := auth.CleanText(*req.Title)
		in.Title = &title
	}
	if req.Description != nil {
		desc := auth.CleanText(*req.Description)
		in.Description = &desc
	}
	if req.Status != nil {
		status := domain.TaskStatus(*req.Status)
		in.Status = &status
	}
	if req.Priority != nil {
		priority := domain.TaskPriority(*req.Priority)
		in.Priority = &priority
	}

	task, err := h.tasks.Update(r.Context(), p, id, in)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, newTaskResponse(task))
}

// Delete removes a task.
// DELETE /v1/tasks/{taskID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "taskID")
	if !ok {
		return
	}

	if err := h.tasks.Delete(r.Context(), p, id); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterRoutes registers task routes on an authenticated router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/teams/{teamID}/tasks", h.ListByTeam)
	r.Post("/teams/{teamID}/tasks", h.Create)
	r.Get("/tasks", h.ListAll)
	r.Get("/tasks/{taskID}", h.Get)
	r.Patch("/tasks/{taskID}", h.Update)
	r.Delete("/tasks/{taskID}", h.Delete)
}
