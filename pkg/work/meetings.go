package work

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/activity"
	"github.com/tendant/simple-team-slim/pkg/authz"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

const msgParticipantNotMember = "Participants must be members of this team"

// MeetingService manages meetings.
type MeetingService struct {
	base
	meetings repository.MeetingStore
}

// NewMeetingService creates a MeetingService.
func NewMeetingService(stores repository.Stores, emitter activity.Emitter) *MeetingService {
	return &MeetingService{base: newBase(stores.Teams, emitter), meetings: stores.Meetings}
}

// CreateMeetingInput holds the fields of a new meeting. The organizer is
// always a participant.
type CreateMeetingInput struct {
	Title        string
	Description  string
	StartTime    time.Time
	EndTime      time.Time
	Participants []uuid.UUID
}

// Create schedules a meeting for a team.
func (s *MeetingService) Create(ctx context.Context, p domain.Principal, teamID uuid.UUID, in CreateMeetingInput) (*domain.Meeting, error) {
	if in.Title == "" {
		return nil, domain.ErrValidation("meeting title is required")
	}
	if err := validateWindow(in.StartTime, in.EndTime); err != nil {
		return nil, err
	}

	team, err := s.liveTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := authz.Meeting(p, team, nil, authz.MeetingCreate).Err(); err != nil {
		return nil, err
	}
	if err := authz.InviteParticipants(p, team, in.Participants).Err(); err != nil {
		return nil, err
	}
	if err := checkMembers(team, in.Participants, msgParticipantNotMember); err != nil {
		return nil, err
	}

	now := s.now()
	meeting := &domain.Meeting{
		ID:          uuid.New(),
		TeamID:      teamID,
		Title:       in.Title,
		Description: in.Description,
		Organizer:   p.UserID,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	meeting.AddParticipant(p.UserID)
	for _, id := range in.Participants {
		meeting.AddParticipant(id)
	}
	if err := s.meetings.Create(ctx, meeting); err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}
	s.emit(ctx, teamID, p.UserID, domain.ActivityMeetingCreated, fmt.Sprintf("Scheduled meeting %s", meeting.Title), meeting.ID)
	return meeting, nil
}

// Get returns a meeting the principal may view.
func (s *MeetingService) Get(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.Meeting, error) {
	meeting, team, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Meeting(p, team, meeting, authz.MeetingView).Err(); err != nil {
		return nil, err
	}
	return meeting, nil
}

// ListByTeam lists a team's meetings in start time order.
func (s *MeetingService) ListByTeam(ctx context.Context, p domain.Principal, teamID uuid.UUID, opts repository.ListOptions) ([]*domain.Meeting, error) {
	team, err := s.team(ctx, p, teamID)
	if err != nil {
		return nil, err
	}
	if err := authz.Meeting(p, team, nil, authz.MeetingView).Err(); err != nil {
		return nil, err
	}
	return s.meetings.List(ctx, &teamID, page(opts))
}

// UpdateMeetingInput is a partial update. A non-nil Participants replaces
// the list; the organizer stays a participant.
type UpdateMeetingInput struct {
	Title        *string
	Description  *string
	StartTime    *time.Time
	EndTime      *time.Time
	Participants []uuid.UUID
}

// Update changes a meeting.
func (s *MeetingService) Update(ctx context.Context, p domain.Principal, id uuid.UUID, in UpdateMeetingInput) (*domain.Meeting, error) {
	meeting, team, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Meeting(p, team, meeting, authz.MeetingUpdate).Err(); err != nil {
		return nil, err
	}

	if in.Title != nil {
		if *in.Title == "" {
			return nil, domain.ErrValidation("meeting title cannot be empty")
		}
		meeting.Title = *in.Title
	}
	if in.Description != nil {
		meeting.Description = *in.Description
	}
	if in.StartTime != nil {
		meeting.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		meeting.EndTime = *in.EndTime
	}
	if err := validateWindow(meeting.StartTime, meeting.EndTime); err != nil {
		return nil, err
	}
	if in.Participants != nil {
		var added []uuid.UUID
		for _, id := range in.Participants {
			if !slices.Contains(meeting.Participants, id) {
				added = append(added, id)
			}
		}
		if err := authz.InviteParticipants(p, team, added).Err(); err != nil {
			return nil, err
		}
		if err := checkMembers(team, added, msgParticipantNotMember); err != nil {
			return nil, err
		}
		meeting.Participants = nil
		meeting.AddParticipant(meeting.Organizer)
		for _, id := range in.Participants {
			meeting.AddParticipant(id)
		}
	}

	meeting.UpdatedAt = s.now()
	if err := s.meetings.Update(ctx, meeting); err != nil {
		return nil, err
	}
	s.emit(ctx, meeting.TeamID, p.UserID, domain.ActivityMeetingUpdated, fmt.Sprintf("Updated meeting %s", meeting.Title), meeting.ID)
	return meeting, nil
}

// Join adds the principal to a meeting's participants. Joining twice is a no-op.
func (s *MeetingService) Join(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.Meeting, error) {
	meeting, team, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Meeting(p, team, meeting, authz.MeetingJoin).Err(); err != nil {
		return nil, err
	}
	if !meeting.AddParticipant(p.UserID) {
		return meeting, nil
	}
	if err := s.meetings.AddParticipant(ctx, id, p.UserID); err != nil {
		return nil, err
	}
	s.emit(ctx, meeting.TeamID, p.UserID, domain.ActivityMeetingJoined, fmt.Sprintf("Joined meeting %s", meeting.Title), meeting.ID)
	return meeting, nil
}

// Delete removes a meeting.
func (s *MeetingService) Delete(ctx context.Context, p domain.Principal, id uuid.UUID) error {
	meeting, team, err := s.load(ctx, p, id)
	if err != nil {
		return err
	}
	if err := authz.Meeting(p, team, meeting, authz.MeetingDelete).Err(); err != nil {
		return err
	}
	if err := s.meetings.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, meeting.TeamID, p.UserID, domain.ActivityMeetingDeleted, fmt.Sprintf("Cancelled meeting %s", meeting.Title), meeting.ID)
	return nil
}

func (s *MeetingService) load(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.Meeting, *domain.Team, error) {
	meeting, err := s.meetings.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	team, err := s.team(ctx, p, meeting.TeamID)
	if err != nil {
		return nil, nil, err
	}
	return meeting, team, nil
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return domain.ErrValidation("meeting start and end times are required")
	}
	if !end.After(start) {
		return domain.ErrValidation("meeting must end after it starts")
	}
	return nil
}
