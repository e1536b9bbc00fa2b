package files

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

// Handler handles file metadata endpoints. File contents are stored elsewhere.
type Handler struct {
	logger *logger.Logger
	files  *work.FileService
}

// NewHandler creates a new files handler.
func NewHandler(logger *logger.Logger, files *work.FileService) *Handler {
	return &Handler{logger: logger, files: files}
}

// FileResponse represents file metadata.
type FileResponse struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newFileResponse(f *domain.File) FileResponse {
	return FileResponse{
		ID:          f.ID.String(),
		TeamID:      f.TeamID.String(),
		Name:        f.Name,
		ContentType: f.ContentType,
		SizeBytes:   f.SizeBytes,
		UploadedBy:  f.UploadedBy.String(),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// UploadRequest represents new file metadata.
type UploadRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"max=255"`
	SizeBytes   int64  `json:"size_bytes" validate:"min=0"`
}

// UpdateRequest represents a partial metadata update.
type UpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	ContentType *string `json:"content_type" validate:"omitempty,max=255"`
}

// ListByTeam lists a team's files.
// GET /v1/teams/{teamID}/files
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

	files, err := h.files.ListByTeam(r.Context(), p, teamID, opts)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	out := make([]FileResponse, len(files))
	for i, f := range files {
		out[i] = newFileResponse(f)
	}
	httputil.JSON(w, http.StatusOK, out)
}

// Upload records a file shared with a team.
// POST /v1/teams/{teamID}/files
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	teamID, ok := common.PathID(w, r, "teamID")
	if !ok {
		return
	}
	var req UploadRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}

	file, err := h.files.Upload(r.Context(), p, teamID, work.UploadFileInput{
		Name:        auth.CleanText(req.Name),
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, newFileResponse(file))
}

// Get returns file metadata.
// GET /v1/files/{fileID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "fileID")
	if !ok {
		return
	}

	file, err := h.files.Get(r.Context(), p, id)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, newFileResponse(file))
}

// Update renames a file or changes its content type.
// PATCH /v1/files/{fileID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "fileID")
	if !ok {
		return
	}
	var req UpdateRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	in := work.UpdateFileInput{ContentType: req.ContentType}
	if req.Name != nil {
		name := auth.CleanText(*req.Name)
		in.Name = &name
	}

	file, err := h.files.Update(r.Context(), p, id, in)
	if err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, newFileResponse(file))
}

// Delete removes file metadata.
// DELETE /v1/files/{fileID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := common.Principal(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "fileID")
	if !ok {
		return
	}

	if err := h.files.Delete(r.Context(), p, id); err != nil {
		httputil.ErrorFrom(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterRoutes registers file routes on an authenticated router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/teams/{teamID}/files", h.ListByTeam)
	r.Post("/teams/{teamID}/files", h.Upload)
	r.Get("/files/{fileID}", h.Get)
	r.Patch("/files/{fileID}", h.Update)
	r.Delete("/files/{fileID}", h.Delete)
}
