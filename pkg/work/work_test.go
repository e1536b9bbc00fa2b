package work

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

type fixture struct {
	ctx      context.Context
	stores   repository.Stores
	tasks    *TaskService
	meetings *MeetingService
	files    *FileService

	admin    domain.Principal
	lead     domain.Principal
	member   domain.Principal
	member2  domain.Principal
	outsider domain.Principal
	team     *domain.Team
}

func principal(role domain.Role) domain.Principal {
	return domain.Principal{UserID: uuid.New(), Role: role, Status: domain.UserStatusActive}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores := repository.NewMemoryStore().Stores()
	f := &fixture{
		ctx:      context.Background(),
		stores:   stores,
		tasks:    NewTaskService(stores, nil),
		meetings: NewMeetingService(stores, nil),
		files:    NewFileService(stores, nil),
		admin:    principal(domain.RoleAdmin),
		lead:     principal(domain.RoleLead),
		member:   principal(domain.RoleMember),
		member2:  principal(domain.RoleMember),
		outsider: principal(domain.RoleLead),
	}
	now := time.Now()
	f.team = &domain.Team{
		ID:        uuid.New(),
		Name:      "Platform",
		CreatedBy: f.lead.UserID,
		Members: []domain.Member{
			{UserID: f.lead.UserID, Role: domain.TeamRoleLead, JoinedAt: now},
			{UserID: f.member.UserID, Role: domain.TeamRoleMember, JoinedAt: now},
			{UserID: f.member2.UserID, Role: domain.TeamRoleMember, JoinedAt: now},
		},
		Status:  domain.TeamStatusActive,
		Version: 1,
	}
	require.NoError(t, stores.Teams.Create(f.ctx, f.team))
	return f
}

func forbidden(t *testing.T, err error, reason string) {
	t.Helper()
	var fe *domain.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, reason, fe.Reason)
}

func TestTasks_CreateRules(t *testing.T) {
	f := newFixture(t)

	task, err := f.tasks.Create(f.ctx, f.lead, f.team.ID, CreateTaskInput{Title: "Ship", AssignedTo: &f.member.UserID})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusTodo, task.Status)
	assert.Equal(t, domain.TaskPriorityMedium, task.Priority)
	assert.True(t, task.IsAssignedTo(f.member.UserID))

	_, err = f.tasks.Create(f.ctx, f.member, f.team.ID, CreateTaskInput{Title: "Nope"})
	forbidden(t, err, "Only team leads or admins can create tasks")

	_, err = f.tasks.Create(f.ctx, f.outsider, f.team.ID, CreateTaskInput{Title: "Nope"})
	forbidden(t, err, "Only team leads or admins can create tasks")

	_, err = f.tasks.Create(f.ctx, f.admin, f.team.ID, CreateTaskInput{Title: "Admin"})
	require.NoError(t, err)

	_, err = f.tasks.Create(f.ctx, f.lead, f.team.ID, CreateTaskInput{Title: "Bad", AssignedTo: &f.outsider.UserID})
	var invalid *domain.InvalidStateError
	assert.ErrorAs(t, err, &invalid)

	_, err = f.tasks.Create(f.ctx, f.lead, f.team.ID, CreateTaskInput{Title: "Bad", Priority: "urgent"})
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = f.tasks.Create(f.ctx, f.lead, uuid.New(), CreateTaskInput{Title: "Nowhere"})
	assert.True(t, domain.IsNotFound(err))
}

func TestTasks_UpdateAndAssign(t *testing.T) {
	f := newFixture(t)
	task, err := f.tasks.Create(f.ctx, f.lead, f.team.ID, CreateTaskInput{Title: "Ship", AssignedTo: &f.member.UserID})
	require.NoError(t, err)

	done := domain.TaskStatusDone
	got, err := f.tasks.Update(f.ctx, f.member, task.ID, UpdateTaskInput{Status: &done})
	require.NoError(t, err, "assignee may update")
	assert.Equal(t, domain.TaskStatusDone, got.Status)

	_, err = f.tasks.Update(f.ctx, f.member, task.ID, UpdateTaskInput{AssignedTo: &f.member2.UserID})
	forbidden(t, err, "Only team leads or admins can assign tasks to other members")

	_, err = f.tasks.Update(f.ctx, f.member2, task.ID, UpdateTaskInput{Status: &done})
	forbidden(t, err, "You do not have permission to update this task")

	got, err = f.tasks.Update(f.ctx, f.lead, task.ID, UpdateTaskInput{AssignedTo: &f.member2.UserID})
	require.NoError(t, err)
	assert.True(t, got.IsAssignedTo(f.member2.UserID))

	got, err = f.tasks.Update(f.ctx, f.lead, task.ID, UpdateTaskInput{Unassign: true})
	require.NoError(t, err)
	assert.Nil(t, got.AssignedTo)

	err = f.tasks.Delete(f.ctx, f.member, task.ID)
	forbidden(t, err, "You do not have permission to delete this task")
	require.NoError(t, f.tasks.Delete(f.ctx, f.lead, task.ID))
	_, err = f.tasks.Get(f.ctx, f.lead, task.ID)
	assert.True(t, domain.IsNotFound(err))
}

func TestTasks_ListingAndOrphans(t *testing.T) {
	f := newFixture(t)
	task, err := f.tasks.Create(f.ctx, f.lead, f.team.ID, CreateTaskInput{Title: "Ship"})
	require.NoError(t, err)

	list, err := f.tasks.ListByTeam(f.ctx, f.member, f.team.ID, repository.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.tasks.ListByTeam(f.ctx, f.outsider, f.team.ID, repository.ListOptions{})
	forbidden(t, err, "You are not a member of this team")

	_, err = f.tasks.ListAll(f.ctx, f.lead, repository.ListOptions{})
	forbidden(t, err, "Only admins can view all tasks")

	// Team deleted under the orphan policy: the task is only reachable by admins.
	require.NoError(t, f.stores.Teams.Delete(f.ctx, f.team.ID))
	_, err = f.tasks.Get(f.ctx, f.lead, task.ID)
	assert.True(t, domain.IsNotFound(err))

	got, err := f.tasks.Get(f.ctx, f.admin, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	all, err := f.tasks.ListAll(f.ctx, f.admin, repository.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMeetings(t *testing.T) {
	f := newFixture(t)
	start := time.Now().Add(time.Hour)
	end := start.Add(30 * time.Minute)

	_, err := f.meetings.Create(f.ctx, f.member, f.team.ID, CreateMeetingInput{Title: "Standup", StartTime: start, EndTime: end})
	forbidden(t, err, "Only team leads or admins can create meetings")

	_, err = f.meetings.Create(f.ctx, f.lead, f.team.ID, CreateMeetingInput{Title: "Standup", StartTime: end, EndTime: start})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)

	m, err := f.meetings.Create(f.ctx, f.lead, f.team.ID, CreateMeetingInput{
		Title: "Standup", StartTime: start, EndTime: end, Participants: []uuid.UUID{f.member.UserID},
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.lead.UserID, f.member.UserID}, m.Participants)

	t.Run("join is idempotent", func(t *testing.T) {
		got, err := f.meetings.Join(f.ctx, f.member2, m.ID)
		require.NoError(t, err)
		assert.Contains(t, got.Participants, f.member2.UserID)

		_, err = f.meetings.Join(f.ctx, f.member2, m.ID)
		require.NoError(t, err)
		stored, err := f.stores.Meetings.GetByID(f.ctx, m.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Participants, 3)
	})

	t.Run("outsider cannot join", func(t *testing.T) {
		_, err := f.meetings.Join(f.ctx, f.outsider, m.ID)
		forbidden(t, err, "You must be a team member to join this meeting")
	})

	t.Run("member cannot update or invite", func(t *testing.T) {
		title := "Renamed"
		_, err := f.meetings.Update(f.ctx, f.member, m.ID, UpdateMeetingInput{Title: &title})
		forbidden(t, err, "Only the organizer, team leads, or admins can update this meeting")

		err = f.meetings.Delete(f.ctx, f.member, m.ID)
		forbidden(t, err, "Only the organizer, team leads, or admins can delete this meeting")
	})

	t.Run("organizer edits participants", func(t *testing.T) {
		got, err := f.meetings.Update(f.ctx, f.lead, m.ID, UpdateMeetingInput{Participants: []uuid.UUID{f.member2.UserID}})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{f.lead.UserID, f.member2.UserID}, got.Participants)

		_, err = f.meetings.Update(f.ctx, f.lead, m.ID, UpdateMeetingInput{Participants: []uuid.UUID{f.outsider.UserID}})
		var invalid *domain.InvalidStateError
		assert.ErrorAs(t, err, &invalid)
	})

	require.NoError(t, f.meetings.Delete(f.ctx, f.lead, m.ID))
}

func TestMeetings_MemberOrganizerCannotInvite(t *testing.T) {
	f := newFixture(t)
	start := time.Now()
	m := &domain.Meeting{
		ID: uuid.New(), TeamID: f.team.ID, Title: "1:1", Organizer: f.member.UserID,
		Participants: []uuid.UUID{f.member.UserID}, StartTime: start, EndTime: start.Add(time.Hour),
	}
	require.NoError(t, f.stores.Meetings.Create(f.ctx, m))

	_, err := f.meetings.Update(f.ctx, f.member, m.ID, UpdateMeetingInput{Participants: []uuid.UUID{f.member.UserID, f.member2.UserID}})
	forbidden(t, err, "Only team leads or admins can invite other participants")

	title := "Focus"
	got, err := f.meetings.Update(f.ctx, f.member, m.ID, UpdateMeetingInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Focus", got.Title)
}

func TestFiles(t *testing.T) {
	f := newFixture(t)

	_, err := f.files.Upload(f.ctx, f.outsider, f.team.ID, UploadFileInput{Name: "plan.pdf"})
	forbidden(t, err, "You must be a team member to upload files")

	file, err := f.files.Upload(f.ctx, f.member, f.team.ID, UploadFileInput{Name: "plan.pdf", ContentType: "application/pdf", SizeBytes: 1024})
	require.NoError(t, err)
	assert.Equal(t, f.member.UserID, file.UploadedBy)

	name := "plan-v2.pdf"
	_, err = f.files.Update(f.ctx, f.lead, file.ID, UpdateFileInput{Name: &name})
	forbidden(t, err, "Only the uploader or an admin can update this file")

	got, err := f.files.Update(f.ctx, f.member, file.ID, UpdateFileInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)

	err = f.files.Delete(f.ctx, f.member2, file.ID)
	forbidden(t, err, "Only the uploader, team leads, or admins can delete this file")

	list, err := f.files.ListByTeam(f.ctx, f.member2, f.team.ID, repository.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.files.Delete(f.ctx, f.lead, file.ID))
}

func TestInactivePrincipalDenied(t *testing.T) {
	f := newFixture(t)
	f.lead.Status = domain.UserStatusInactive

	_, err := f.tasks.Create(f.ctx, f.lead, f.team.ID, CreateTaskInput{Title: "Ship"})
	forbidden(t, err, "Your account is inactive")
	_, err = f.files.ListByTeam(f.ctx, f.lead, f.team.ID, repository.ListOptions{})
	forbidden(t, err, "Your account is inactive")
}

func TestCheckMembers(t *testing.T) {
	member := uuid.New()
	team := &domain.Team{Members: []domain.Member{{UserID: member, Role: domain.TeamRoleMember}}}

	assert.NoError(t, checkMembers(team, []uuid.UUID{member}, "unused"))

	err := checkMembers(team, []uuid.UUID{member, uuid.New()}, "50% of invitees are strangers")
	var invalid *domain.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "50% of invitees are strangers", invalid.Message)
}

func TestMeetings_ListInStartTimeOrder(t *testing.T) {
	f := newFixture(t)
	base := time.Now().Add(24 * time.Hour)

	// Created latest-first so creation order cannot mask the sort.
	var want []string
	for i := 2; i >= 0; i-- {
		start := base.Add(time.Duration(i) * time.Hour)
		m, err := f.meetings.Create(f.ctx, f.lead, f.team.ID, CreateMeetingInput{
			Title: "Slot", StartTime: start, EndTime: start.Add(30 * time.Minute),
		})
		require.NoError(t, err)
		want = append([]string{m.ID.String()}, want...)
	}

	got, err := f.meetings.ListByTeam(f.ctx, f.member, f.team.ID, repository.ListOptions{})
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID.String()
	}
	assert.Equal(t, want, ids)
}
