package work

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/activity"
	"github.com/tendant/simple-team-slim/pkg/authz"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

// FileService manages file metadata. File contents are stored elsewhere.
type FileService struct {
	base
	files repository.FileStore
}

// NewFileService creates a FileService.
func NewFileService(stores repository.Stores, emitter activity.Emitter) *FileService {
	return &FileService{base: newBase(stores.Teams, emitter), files: stores.Files}
}

// UploadFileInput holds the metadata of a new file.
type UploadFileInput struct {
	Name        string
	ContentType string
	SizeBytes   int64
}

// Upload records a file shared with a team.
func (s *FileService) Upload(ctx context.Context, p domain.Principal, teamID uuid.UUID, in UploadFileInput) (*domain.File, error) {
	if in.Name == "" {
		return nil, domain.ErrValidation("file name is required")
	}
	if in.SizeBytes < 0 {
		return nil, domain.ErrValidation("file size cannot be negative")
	}
	team, err := s.liveTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := authz.File(p, team, nil, authz.FileUpload).Err(); err != nil {
		return nil, err
	}

	now := s.now()
	file := &domain.File{
		ID:          uuid.New(),
		TeamID:      teamID,
		Name:        in.Name,
		ContentType: in.ContentType,
		SizeBytes:   in.SizeBytes,
		UploadedBy:  p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.files.Create(ctx, file); err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	s.emit(ctx, teamID, p.UserID, domain.ActivityFileUploaded, fmt.Sprintf("Uploaded file %s", file.Name), file.ID)
	return file, nil
}

// Get returns a file the principal may view.
func (s *FileService) Get(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.File, error) {
	file, team, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := authz.File(p, team, file, authz.FileView).Err(); err != nil {
		return nil, err
	}
	return file, nil
}

// ListByTeam lists a team's files, newest first.
func (s *FileService) ListByTeam(ctx context.Context, p domain.Principal, teamID uuid.UUID, opts repository.ListOptions) ([]*domain.File, error) {
	team, err := s.team(ctx, p, teamID)
	if err != nil {
		return nil, err
	}
	if err := authz.File(p, team, nil, authz.FileView).Err(); err != nil {
		return nil, err
	}
	return s.files.List(ctx, &teamID, page(opts))
}

// UpdateFileInput is a partial update of file metadata.
type UpdateFileInput struct {
	Name        *string
	ContentType *string
}

// Update renames a file or changes its content type.
func (s *FileService) Update(ctx context.Context, p domain.Principal, id uuid.UUID, in UpdateFileInput) (*domain.File, error) {
	file, team, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := authz.File(p, team, file, authz.FileUpdate).Err(); err != nil {
		return nil, err
	}
	if in.Name != nil {
		if *in.Name == "" {
			return nil, domain.ErrValidation("file name cannot be empty")
		}
		file.Name = *in.Name
	}
	if in.ContentType != nil {
		file.ContentType = *in.ContentType
	}
	file.UpdatedAt = s.now()
	if err := s.files.Update(ctx, file); err != nil {
		return nil, err
	}
	s.emit(ctx, file.TeamID, p.UserID, domain.ActivityFileUpdated, fmt.Sprintf("Updated file %s", file.Name), file.ID)
	return file, nil
}

// Delete removes a file's metadata.
func (s *FileService) Delete(ctx context.Context, p domain.Principal, id uuid.UUID) error {
	file, team, err := s.load(ctx, p, id)
	if err != nil {
		return err
	}
	if err := authz.File(p, team, file, authz.FileDelete).Err(); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, file.TeamID, p.UserID, domain.ActivityFileDeleted, fmt.Sprintf("Deleted file %s", file.Name), file.ID)
	return nil
}

func (s *FileService) load(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.File, *domain.Team, error) {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	team, err := s.team(ctx, p, file.TeamID)
	if err != nil {
		return nil, nil, err
	}
	return file, team, nil
}
