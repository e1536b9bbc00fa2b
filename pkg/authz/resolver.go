package authz

import (
	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// Deny reasons. They are returned to API clients verbatim and must stay stable.
const (
	ReasonInactive           = "Your account is inactive"
	ReasonNotTeamMember      = "You are not a member of this team"
	ReasonUpdateTeam         = "Only the team creator or an admin can update this team"
	ReasonDeleteTeam         = "Only the team creator or an admin can delete this team"
	ReasonManageMembers      = "Only the team creator, team leads, or admins can manage team members"
	ReasonTransferLeadership = "Only the team creator or an admin can transfer leadership"
	ReasonCreateTask         = "Only team leads or admins can create tasks"
	ReasonAssignTask         = "Only team leads or admins can assign tasks to other members"
	ReasonUpdateTask         = "You do not have permission to update this task"
	ReasonDeleteTask         = "You do not have permission to delete this task"
	ReasonCreateMeeting      = "Only team leads or admins can create meetings"
	ReasonInviteParticipants = "Only team leads or admins can invite other participants"
	ReasonUpdateMeeting      = "Only the organizer, team leads, or admins can update this meeting"
	ReasonDeleteMeeting      = "Only the organizer, team leads, or admins can delete this meeting"
	ReasonJoinMeeting        = "You must be a team member to join this meeting"
	ReasonUploadFile         = "You must be a team member to upload files"
	ReasonUpdateFile         = "Only the uploader or an admin can update this file"
	ReasonDeleteFile         = "Only the uploader, team leads, or admins can delete this file"
	ReasonViewAllTeams       = "Only admins can view all teams"
	ReasonViewAllTasks       = "Only admins can view all tasks"
	ReasonViewAllActivities  = "Only admins can view all activities"
	ReasonViewAllUsers       = "Only admins can view all users"
	ReasonCreateUser         = "Only admins can create users"
	ReasonChangeUserRole     = "Only admins can change user roles"
	ReasonDeactivateUser     = "Only admins can deactivate users"
	ReasonUnknownAction      = "Unknown action"
	ReasonRemoveCreator      = "Cannot remove the team creator"
	ReasonSelfDeactivate     = "Admins cannot deactivate their own account"
	ReasonSelfRoleChange     = "Admins cannot change their own role"
	ReasonNewLeadRole        = "New lead must have the LEAD role"
	ReasonDesignatedLeadRole = "Team lead must have the LEAD role"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the single allowing decision.
var Allow = Decision{Allowed: true}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Err returns nil for an allowing decision and a ForbiddenError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return domain.ErrForbidden(d.Reason)
}

// allowIf allows when cond holds or the principal is an admin.
func allowIf(p domain.Principal, cond bool, reason string) Decision {
	if cond || p.IsAdmin() {
		return Allow
	}
	return deny(reason)
}

// System decides actions that are not scoped to a team. All of them are admin only.
func System(p domain.Principal, a SystemAction) Decision {
	if !p.IsActive() {
		return deny(ReasonInactive)
	}
	var reason string
	switch a {
	case ViewAllTeams:
		reason = ReasonViewAllTeams
	case ViewAllTasks:
		reason = ReasonViewAllTasks
	case ViewAllActivities:
		reason = ReasonViewAllActivities
	case ViewAllUsers:
		reason = ReasonViewAllUsers
	case CreateUser:
		reason = ReasonCreateUser
	case ChangeUserRole:
		reason = ReasonChangeUserRole
	case DeactivateUser:
		reason = ReasonDeactivateUser
	default:
		return deny(ReasonUnknownAction)
	}
	return allowIf(p, false, reason)
}

// CreateTeam decides team creation. Any active principal may create a team.
func CreateTeam(p domain.Principal) Decision {
	if !p.IsActive() {
		return deny(ReasonInactive)
	}
	return Allow
}

// Team decides an action on a resolved team.
func Team(p domain.Principal, t *domain.Team, a TeamAction) Decision {
	if !p.IsActive() {
		return deny(ReasonInactive)
	}
	creator := t.CreatedBy == p.UserID
	switch a {
	case TeamView:
		return allowIf(p, creator || t.HasMember(p.UserID), ReasonNotTeamMember)
	case TeamUpdate:
		return allowIf(p, creator, ReasonUpdateTeam)
	case TeamDelete:
		return allowIf(p, creator, ReasonDeleteTeam)
	case TeamAddMember, TeamRemoveMember:
		return allowIf(p, creator || t.IsLead(p.UserID), ReasonManageMembers)
	case TeamTransferLeadership:
		return allowIf(p, creator, ReasonTransferLeadership)
	}
	return deny(ReasonUnknownAction)
}

// Task decides an action on a task of team t. task is nil for TaskCreate and
// for TaskAssign checks made before the task exists.
func Task(p domain.Principal, t *domain.Team, task *domain.Task, a TaskAction) Decision {
	if !p.IsActive() {
		return deny(ReasonInactive)
	}
	lead := t.IsLead(p.UserID)
	switch a {
	case TaskView:
		return allowIf(p, t.HasMember(p.UserID) || t.CreatedBy == p.UserID, ReasonNotTeamMember)
	case TaskCreate:
		return allowIf(p, t.CreatedBy == p.UserID || lead, ReasonCreateTask)
	case TaskAssign:
		return allowIf(p, lead, ReasonAssignTask)
	case TaskUpdate:
		return allowIf(p, task.CreatedBy == p.UserID || task.IsAssignedTo(p.UserID) || lead, ReasonUpdateTask)
	case TaskDelete:
		return allowIf(p, task.CreatedBy == p.UserID || lead, ReasonDeleteTask)
	}
	return deny(ReasonUnknownAction)
}

// AssignTask decides whether p may set assignee on a task of team t.
// Assigning to nobody or to oneself needs no extra authority.
func AssignTask(p domain.Principal, t *domain.Team, assignee *uuid.UUID) Decision {
	if assignee == nil || *assignee == p.UserID {
		return Allow
	}
	return Task(p, t, nil, TaskAssign)
}

// Meeting decides an action on a meeting of team t. m is nil for MeetingCreate
// and MeetingInvite.
func Meeting(p domain.Principal, t *domain.Team, m *domain.Meeting, a MeetingAction) Decision {
	if !p.IsActive() {
		return deny(ReasonInactive)
	}
	lead := t.IsLead(p.UserID)
	switch a {
	case MeetingView:
		return allowIf(p, t.HasMember(p.UserID) || t.CreatedBy == p.UserID, ReasonNotTeamMember)
	case MeetingCreate:
		return allowIf(p, t.CreatedBy == p.UserID || lead, ReasonCreateMeeting)
	case MeetingInvite:
		return allowIf(p, lead, ReasonInviteParticipants)
	case MeetingUpdate:
		return allowIf(p, m.Organizer == p.UserID || lead, ReasonUpdateMeeting)
	case MeetingDelete:
		return allowIf(p, m.Organizer == p.UserID || lead, ReasonDeleteMeeting)
	case MeetingJoin:
		return allowIf(p, t.HasMember(p.UserID) || m.Organizer == p.UserID, ReasonJoinMeeting)
	}
	return deny(ReasonUnknownAction)
}

// InviteParticipants decides whether p may put participants other than
// themselves on a meeting of team t.
func InviteParticipants(p domain.Principal, t *domain.Team, participants []uuid.UUID) Decision {
	for _, id := range participants {
		if id != p.UserID {
			return Meeting(p, t, nil, MeetingInvite)
		}
	}
	return Allow
}

// File decides an action on a file of team t. f is nil for FileUpload.
func File(p domain.Principal, t *domain.Team, f *domain.File, a FileAction) Decision {
	if !p.IsActive() {
		return deny(ReasonInactive)
	}
	switch a {
	case FileView:
		return allowIf(p, t.HasMember(p.UserID) || t.CreatedBy == p.UserID, ReasonNotTeamMember)
	case FileUpload:
		return allowIf(p, t.HasMember(p.UserID), ReasonUploadFile)
	case FileUpdate:
		return allowIf(p, f.UploadedBy == p.UserID, ReasonUpdateFile)
	case FileDelete:
		return allowIf(p, f.UploadedBy == p.UserID || t.IsLead(p.UserID), ReasonDeleteFile)
	}
	return deny(ReasonUnknownAction)
}

// CheckRemoveTarget rejects removing the team creator. It applies to every
// principal, admins included.
func CheckRemoveTarget(t *domain.Team, target uuid.UUID) error {
	if target == t.CreatedBy {
		return domain.ErrInvalidState("%s", ReasonRemoveCreator)
	}
	return nil
}

// CheckSelfProtection rejects an admin deactivating or re-roling their own account.
func CheckSelfProtection(p domain.Principal, target uuid.UUID, a SystemAction) error {
	if p.UserID != target {
		return nil
	}
	switch a {
	case DeactivateUser:
		return domain.ErrInvalidState("%s", ReasonSelfDeactivate)
	case ChangeUserRole:
		return domain.ErrInvalidState("%s", ReasonSelfRoleChange)
	}
	return nil
}

// CheckLeadEligible rejects a leadership target that does not hold the global LEAD role.
func CheckLeadEligible(target *domain.User, reason string) error {
	if target.Role != domain.RoleLead {
		return domain.ErrInvalidState("%s", reason)
	}
	return nil
}
