package work

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/activity"
	"github.com/tendant/simple-team-slim/pkg/authz"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

const msgAssigneeNotMember = "Assignee must be a member of this team"

// TaskService manages tasks.
type TaskService struct {
	base
	tasks repository.TaskStore
}

// NewTaskService creates a TaskService.
func NewTaskService(stores repository.Stores, emitter activity.Emitter) *TaskService {
	return &TaskService{base: newBase(stores.Teams, emitter), tasks: stores.Tasks}
}

// CreateTaskInput holds the fields of a new task.
type CreateTaskInput struct {
	Title       string
	Description string
	Status      domain.TaskStatus
	Priority    domain.TaskPriority
	AssignedTo  *uuid.UUID
	DueDate     *time.Time
}

// Create adds a task to a team.
func (s *TaskService) Create(ctx context.Context, p domain.Principal, teamID uuid.UUID, in CreateTaskInput) (*domain.Task, error) {
	if in.Title == "" {
		return nil, domain.ErrValidation("task title is required")
	}
	if in.Status == "" {
		in.Status = domain.TaskStatusTodo
	}
	if in.Priority == "" {
		in.Priority = domain.TaskPriorityMedium
	}
	if err := validateTask(in.Status, in.Priority); err != nil {
		return nil, err
	}

	team, err := s.liveTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := authz.Task(p, team, nil, authz.TaskCreate).Err(); err != nil {
		return nil, err
	}
	if err := authz.AssignTask(p, team, in.AssignedTo).Err(); err != nil {
		return nil, err
	}
	if in.AssignedTo != nil {
		if err := checkMembers(team, []uuid.UUID{*in.AssignedTo}, msgAssigneeNotMember); err != nil {
			return nil, err
		}
	}

	now := s.now()
	task := &domain.Task{
		ID:          uuid.New(),
		TeamID:      teamID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		CreatedBy:   p.UserID,
		AssignedTo:  in.AssignedTo,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.emit(ctx, teamID, p.UserID, domain.ActivityTaskCreated, fmt.Sprintf("Created task %s", task.Title), task.ID)
	return task, nil
}

// Get returns a task the principal may view.
func (s *TaskService) Get(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	team, err := s.team(ctx, p, task.TeamID)
	if err != nil {
		return nil, err
	}
	if err := authz.Task(p, team, task, authz.TaskView).Err(); err != nil {
		return nil, err
	}
	return task, nil
}

// ListByTeam lists a team's tasks, newest first.
func (s *TaskService) ListByTeam(ctx context.Context, p domain.Principal, teamID uuid.UUID, opts repository.ListOptions) ([]*domain.Task, error) {
	team, err := s.team(ctx, p, teamID)
	if err != nil {
		return nil, err
	}
	if err := authz.Task(p, team, nil, authz.TaskView).Err(); err != nil {
		return nil, err
	}
	return s.tasks.List(ctx, &teamID, page(opts))
}

// ListAll lists tasks across every team. Admin only.
func (s *TaskService) ListAll(ctx context.Context, p domain.Principal, opts repository.ListOptions) ([]*domain.Task, error) {
	if err := authz.System(p, authz.ViewAllTasks).Err(); err != nil {
		return nil, err
	}
	return s.tasks.List(ctx, nil, page(opts))
}

// UpdateTaskInput is a partial update. Nil fields are left unchanged;
// Unassign clears the assignee.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *domain.TaskStatus
	Priority    *domain.TaskPriority
	AssignedTo  *uuid.UUID
	Unassign    bool
	DueDate     *time.Time
}

// Update changes a task. Reassigning to someone other than the principal
// needs lead authority.
func (s *TaskService) Update(ctx context.Context, p domain.Principal, id uuid.UUID, in UpdateTaskInput) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	team, err := s.team(ctx, p, task.TeamID)
	if err != nil {
		return nil, err
	}
	if err := authz.Task(p, team, task, authz.TaskUpdate).Err(); err != nil {
		return nil, err
	}

	if in.Title != nil {
		if *in.Title == "" {
			return nil, domain.ErrValidation("task title cannot be empty")
		}
		task.Title = *in.Title
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.Status != nil {
		task.Status = *in.Status
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}
	if err := validateTask(task.Status, task.Priority); err != nil {
		return nil, err
	}
	if in.DueDate != nil {
		task.DueDate = in.DueDate
	}
	switch {
	case in.Unassign:
		task.AssignedTo = nil
	case in.AssignedTo != nil && !task.IsAssignedTo(*in.AssignedTo):
		if err := authz.AssignTask(p, team, in.AssignedTo).Err(); err != nil {
			return nil, err
		}
		if err := checkMembers(team, []uuid.UUID{*in.AssignedTo}, msgAssigneeNotMember); err != nil {
			return nil, err
		}
		task.AssignedTo = in.AssignedTo
	}

	task.UpdatedAt = s.now()
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	s.emit(ctx, task.TeamID, p.UserID, domain.ActivityTaskUpdated, fmt.Sprintf("Updated task %s", task.Title), task.ID)
	return task, nil
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, p domain.Principal, id uuid.UUID) error {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return err
	}
	team, err := s.team(ctx, p, task.TeamID)
	if err != nil {
		return err
	}
	if err := authz.Task(p, team, task, authz.TaskDelete).Err(); err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, task.TeamID, p.UserID, domain.ActivityTaskDeleted, fmt.Sprintf("Deleted task %s", task.Title), task.ID)
	return nil
}

func validateTask(status domain.TaskStatus, priority domain.TaskPriority) error {
	switch status {
	case domain.TaskStatusTodo, domain.TaskStatusInProgress, domain.TaskStatusDone:
	default:
		return domain.ErrValidation("invalid task status %q", status)
	}
	switch priority {
	case domain.TaskPriorityLow, domain.TaskPriorityMedium, domain.TaskPriorityHigh:
	default:
		return domain.ErrValidation("invalid task priority %q", priority)
	}
	return nil
}
