// Package authz decides whether a principal may perform an action on a team
// or on a resource owned by a team. Every decision is a pure function of its
// inputs; callers resolve the team and resource before asking.
package authz

import "fmt"

// TeamAction is an action on a team aggregate.
type TeamAction uint8

const (
	TeamView TeamAction = iota + 1
	TeamUpdate
	TeamDelete
	TeamAddMember
	TeamRemoveMember
	TeamTransferLeadership
)

var teamActionNames = map[TeamAction]string{
	TeamView:               "team.view",
	TeamUpdate:             "team.update",
	TeamDelete:             "team.delete",
	TeamAddMember:          "team.add_member",
	TeamRemoveMember:       "team.remove_member",
	TeamTransferLeadership: "team.transfer_leadership",
}

func (a TeamAction) String() string { return actionName(teamActionNames, a) }

// TaskAction is an action on a task.
type TaskAction uint8

const (
	TaskView TaskAction = iota + 1
	TaskCreate
	TaskAssign
	TaskUpdate
	TaskDelete
)

var taskActionNames = map[TaskAction]string{
	TaskView:   "task.view",
	TaskCreate: "task.create",
	TaskAssign: "task.assign",
	TaskUpdate: "task.update",
	TaskDelete: "task.delete",
}

func (a TaskAction) String() string { return actionName(taskActionNames, a) }

// MeetingAction is an action on a meeting.
type MeetingAction uint8

const (
	MeetingView MeetingAction = iota + 1
	MeetingCreate
	MeetingInvite
	MeetingUpdate
	MeetingDelete
	MeetingJoin
)

var meetingActionNames = map[MeetingAction]string{
	MeetingView:   "meeting.view",
	MeetingCreate: "meeting.create",
	MeetingInvite: "meeting.invite",
	MeetingUpdate: "meeting.update",
	MeetingDelete: "meeting.delete",
	MeetingJoin:   "meeting.join",
}

func (a MeetingAction) String() string { return actionName(meetingActionNames, a) }

// FileAction is an action on a file.
type FileAction uint8

const (
	FileView FileAction = iota + 1
	FileUpload
	FileUpdate
	FileDelete
)

var fileActionNames = map[FileAction]string{
	FileView:   "file.view",
	FileUpload: "file.upload",
	FileUpdate: "file.update",
	FileDelete: "file.delete",
}

func (a FileAction) String() string { return actionName(fileActionNames, a) }

// SystemAction is an action that is not scoped to a single team.
type SystemAction uint8

const (
	ViewAllTeams SystemAction = iota + 1
	ViewAllTasks
	ViewAllActivities
	ViewAllUsers
	CreateUser
	ChangeUserRole
	DeactivateUser
)

var systemActionNames = map[SystemAction]string{
	ViewAllTeams:      "system.view_all_teams",
	ViewAllTasks:      "system.view_all_tasks",
	ViewAllActivities: "system.view_all_activities",
	ViewAllUsers:      "system.view_all_users",
	CreateUser:        "system.create_user",
	ChangeUserRole:    "system.change_user_role",
	DeactivateUser:    "system.deactivate_user",
}

func (a SystemAction) String() string { return actionName(systemActionNames, a) }

func actionName[A ~uint8](names map[A]string, a A) string {
	if name, ok := names[a]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(a))
}
