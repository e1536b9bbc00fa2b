package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType names a ledger event.
type ActivityType string

const (
	ActivityTeamCreated           ActivityType = "team_created"
	ActivityTeamUpdated           ActivityType = "team_updated"
	ActivityTeamDeleted           ActivityType = "team_deleted"
	ActivityMemberAdded           ActivityType = "member_added"
	ActivityMemberRemoved         ActivityType = "member_removed"
	ActivityLeadershipTransferred ActivityType = "leadership_transferred"
	ActivityTaskCreated           ActivityType = "task_created"
	ActivityTaskUpdated           ActivityType = "task_updated"
	ActivityTaskDeleted           ActivityType = "task_deleted"
	ActivityMeetingCreated        ActivityType = "meeting_created"
	ActivityMeetingUpdated        ActivityType = "meeting_updated"
	ActivityMeetingDeleted        ActivityType = "meeting_deleted"
	ActivityMeetingJoined         ActivityType = "meeting_joined"
	ActivityFileUploaded          ActivityType = "file_uploaded"
	ActivityFileUpdated           ActivityType = "file_updated"
	ActivityFileDeleted           ActivityType = "file_deleted"
	ActivityUserCreated           ActivityType = "user_created"
	ActivityUserRoleChanged       ActivityType = "user_role_changed"
	ActivityUserDeactivated       ActivityType = "user_deactivated"
)

// Activity is one append-only ledger entry. It is a projection of past
// mutations and is never used to rebuild membership state.
type Activity struct {
	ID          uuid.UUID    `json:"id"`
	TeamID      *uuid.UUID   `json:"team_id,omitempty"`
	UserID      uuid.UUID    `json:"user_id"`
	Type        ActivityType `json:"activity_type"`
	Description string       `json:"description"`
	RelatedID   string       `json:"related_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ActivityFilter narrows a ledger read. A nil TeamID reads the global ledger.
type ActivityFilter struct {
	TeamID *uuid.UUID
	Type   ActivityType
	Limit  int
	Offset int
}

// ActivityCount is the number of ledger entries of one type.
type ActivityCount struct {
	Type  ActivityType `json:"activity_type"`
	Count int64        `json:"count"`
}
