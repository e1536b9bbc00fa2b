package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the progress state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// TaskPriority orders tasks for reporting.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Task is a unit of work owned by a team.
type Task struct {
	ID          uuid.UUID
	TeamID      uuid.UUID
	Title       string
	Description string
	Status      TaskStatus
	Priority    TaskPriority
	CreatedBy   uuid.UUID
	AssignedTo  *uuid.UUID
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAssignedTo reports whether the task is assigned to userID.
func (t *Task) IsAssignedTo(userID uuid.UUID) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// Meeting is a scheduled meeting owned by a team.
type Meeting struct {
	ID           uuid.UUID
	TeamID       uuid.UUID
	Title        string
	Description  string
	Organizer    uuid.UUID
	Participants []uuid.UUID
	StartTime    time.Time
	EndTime      time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AddParticipant adds userID once and reports whether it was added.
func (m *Meeting) AddParticipant(userID uuid.UUID) bool {
	if slices.Contains(m.Participants, userID) {
		return false
	}
	m.Participants = append(m.Participants, userID)
	return true
}

// File is the metadata of a file shared with a team.
type File struct {
	ID          uuid.UUID
	TeamID      uuid.UUID
	Name        string
	ContentType string
	SizeBytes   int64
	UploadedBy  uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
