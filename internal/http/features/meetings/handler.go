package meetings

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

// Handler handles meeting endpoints.
type Handler struct {
	logger   *logger.Logger
	meetings *work.MeetingService
}

// NewHandler creates a new meetings handler.
func NewHandler(logger *logger.Logger, meetings *work.MeetingService) *Handler {
	return &Handler{logger: logger, meetings: meetings}
}

// MeetingResponse represents a meeting.
type MeetingResponse struct {
	ID           string    `json:"id"`
	TeamID       string    `json:"team_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Organizer    string    `json:"organizer"`
	Participants []string  `json:"participants"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newMeetingResponse(m *domain.Meeting) MeetingResponse {
	return MeetingResponse{
		ID:           m.ID.String(),
		TeamID:       m.TeamID.String(),
		Title:        m.Title,
		Description:  m.Description,
		Organizer:    m.Organizer.String(),
		Participants: common.IDStrings(m.Participants),
		StartTime:    m.StartTime,
		EndTime:      m.EndTime,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// CreateRequest represents a meeting creation request.
type CreateRequest struct {
	Title        string    `json:"title" validate:"required,max=200"`
	Description  string    `json:"description" validate:"max=5000"`
	StartTime    time.Time `json:"start_time" validate:"required"`
	EndTime      time.Time `json:"end_time" validate:"required"`
	Participants []string  `json:"participants" validate:"omitempty,dive,uuid"`
}

// UpdateRequest represents a partial meeting update. A present participants
// list replaces the current one.
type UpdateRequest struct {
	Title        *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string    `json:"description" validate:"omitempty,max=5000"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Participants []string   `json:"participants" validate:"omitempty,dive,uuid"`
}

// ListByTeam lists a team's meetings.
// GET /v1/teams/{teamID}/meetings
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

	meetings, err := h.meetings.ListByTeam(r.Context(), p, teamID, opts)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	out := make([]MeetingResponse, len(meetings))
	for i, m := range meetings {
		out[i] = newMeetingResponse(m)
	}
	httputil.JSON(w, http.StatusOK, out)
}

// Create schedules a meeting.
// POST /v1/teams/{teamID}/meetings
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
	participants, err := common.ParseIDs("participants", req.Participants)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	meeting, err := h.meetings.Create(r.Context(), p, teamID, work.CreateMeetingInput{
		Title:        auth.CleanText(req.Title),
		Description:  auth.CleanText(req.Description),
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Participants: participants,
	})
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, newMeetingResponse(meeting))
}

// Get returns one meeting.
// GET /v1/meetings/{meetingID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "meetingID")
	if !ok {
		return
	}

	meeting, err := h.meetings.Get(r.Context(), p, id)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, newMeetingResponse(meeting))
}

// Update changes a meeting.
// PATCH /v1/meetings/{meetingID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "meetingID")
	if !ok {
		return
	}
	var req UpdateRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	participants, err := common.ParseIDs("participants", req.Participants)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	in := work.UpdateMeetingInput{
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Participants: participants,
	}
	if req.Title != nil {
		title := auth.CleanText(*req.Title)
		in.Title = &title
	}
	if req.Description != nil {
		desc := auth.CleanText(*req.Description)
		in.Description = &desc
	}

	meeting, err := h.meetings.Update(r.Context(), p, id, in)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, newMeetingResponse(meeting))
}

// Join adds the caller to a meeting's participants.
// POST /v1/meetings/{meetingID}/join
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "meetingID")
	if !ok {
		return
	}

	meeting, err := h.meetings.Join(r.Context(), p, id)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, newMeetingResponse(meeting))
}

// Delete removes a meeting.
// DELETE /v1/meetings/{meetingID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "meetingID")
	if !ok {
		return
	}

	if err := h.meetings.Delete(r.Context(), p, id); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterRoutes registers meeting routes on an authenticated router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/teams/{teamID}/meetings", h.ListByTeam)
	r.Post("/teams/{teamID}/meetings", h.Create)
	r.Get("/meetings/{meetingID}", h.Get)
	r.Patch("/meetings/{meetingID}", h.Update)
	r.Delete("/meetings/{meetingID}", h.Delete)
	r.Post("/meetings/{meetingID}/join", h.Join)
}
