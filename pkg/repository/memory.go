package repository

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// MemoryStore keeps every entity in process memory behind one lock. It
// offers the same single-record atomicity as the Postgres repositories and is
// used by tests and by STORE_DRIVER=memory.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]*domain.User
	teams       map[uuid.UUID]*domain.Team
	tasks       map[uuid.UUID]*domain.Task
	meetings    map[uuid.UUID]*domain.Meeting
	files       map[uuid.UUID]*domain.File
	activities  []*domain.Activity
	activityIDs map[uuid.UUID]struct{}
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[uuid.UUID]*domain.User),
		teams:       make(map[uuid.UUID]*domain.Team),
		tasks:       make(map[uuid.UUID]*domain.Task),
		meetings:    make(map[uuid.UUID]*domain.Meeting),
		files:       make(map[uuid.UUID]*domain.File),
		activityIDs: make(map[uuid.UUID]struct{}),
	}
}

// Stores returns views of the memory store for every store interface.
func (s *MemoryStore) Stores() Stores {
	return Stores{
		Users:      memUsers{s},
		Teams:      memTeams{s},
		Tasks:      memTasks{s},
		Meetings:   memMeetings{s},
		Files:      memFiles{s},
		Activities: memActivities{s},
	}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Teams = slices.Clone(u.Teams)
	return &c
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	if t.AssignedTo != nil {
		id := *t.AssignedTo
		c.AssignedTo = &id
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	return &c
}

func cloneMeeting(m *domain.Meeting) *domain.Meeting {
	c := *m
	c.Participants = slices.Clone(m.Participants)
	return &c
}

func cloneFile(f *domain.File) *domain.File {
	c := *f
	return &c
}

func paginate[T any](items []T, opts ListOptions) []T {
	if opts.Offset >= len(items) {
		return nil
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// teamScoped lists, deletes and counts the records of one team.
type teamScoped[T any] struct {
	teamOf  func(*T) uuid.UUID
	compare func(a, b *T) int
	clone   func(*T) *T
}

func (ts teamScoped[T]) list(m map[uuid.UUID]*T, teamID *uuid.UUID, opts ListOptions) []*T {
	var out []*T
	for _, v := range m {
		if teamID == nil || ts.teamOf(v) == *teamID {
			out = append(out, ts.clone(v))
		}
	}
	slices.SortFunc(out, ts.compare)
	return paginate(out, opts)
}

func (ts teamScoped[T]) deleteByTeam(m map[uuid.UUID]*T, teamID uuid.UUID) int64 {
	var n int64
	for id, v := range m {
		if ts.teamOf(v) == teamID {
			delete(m, id)
			n++
		}
	}
	return n
}

func (ts teamScoped[T]) countByTeam(m map[uuid.UUID]*T, teamID uuid.UUID) int64 {
	var n int64
	for _, v := range m {
		if ts.teamOf(v) == teamID {
			n++
		}
	}
	return n
}

// Users

type memUsers struct{ s *MemoryStore }

func (m memUsers) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.ErrDuplicate("a user with email %s already exists", user.Email)
		}
	}
	m.s.users[user.ID] = cloneUser(user)
	return nil
}

func (m memUsers) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound("user %s not found", id)
	}
	return cloneUser(u), nil
}

func (m memUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, u := range m.s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrNotFound("user %s not found", email)
}

func (m memUsers) List(ctx context.Context, opts ListOptions) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	users := make([]*domain.User, 0, len(m.s.users))
	for _, u := range m.s.users {
		users = append(users, cloneUser(u))
	}
	slices.SortFunc(users, func(a, b *domain.User) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return paginate(users, opts), nil
}

func (m memUsers) update(ctx context.Context, id uuid.UUID, fn func(*domain.User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return domain.ErrNotFound("user %s not found", id)
	}
	fn(u)
	return nil
}

func (m memUsers) SetRole(ctx context.Context, id uuid.UUID, role domain.Role) error {
	return m.update(ctx, id, func(u *domain.User) { u.Role = role })
}

func (m memUsers) Deactivate(ctx context.Context, id uuid.UUID) error {
	return m.update(ctx, id, func(u *domain.User) {
		u.Status = domain.UserStatusInactive
		u.Teams = nil
	})
}

func (m memUsers) AddTeam(ctx context.Context, userID, teamID uuid.UUID) error {
	return m.update(ctx, userID, func(u *domain.User) {
		if !slices.Contains(u.Teams, teamID) {
			u.Teams = append(u.Teams, teamID)
		}
	})
}

func (m memUsers) RemoveTeam(ctx context.Context, userID, teamID uuid.UUID) error {
	return m.update(ctx, userID, func(u *domain.User) {
		u.Teams = slices.DeleteFunc(u.Teams, func(id uuid.UUID) bool { return id == teamID })
	})
}

// Teams

type memTeams struct{ s *MemoryStore }

func (m memTeams) Create(ctx context.Context, team *domain.Team) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.teams[team.ID]; ok {
		return domain.ErrDuplicate("team %s already exists", team.ID)
	}
	m.s.teams[team.ID] = team.Clone()
	return nil
}

func (m memTeams) GetByID(ctx context.Context, id uuid.UUID) (*domain.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	t, ok := m.s.teams[id]
	if !ok {
		return nil, domain.ErrNotFound("team %s not found", id)
	}
	return t.Clone(), nil
}

func (m memTeams) List(ctx context.Context, filter TeamFilter) ([]*domain.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var teams []*domain.Team
	for _, t := range m.s.teams {
		if filter.MemberID == nil || t.HasMember(*filter.MemberID) {
			teams = append(teams, t.Clone())
		}
	}
	slices.SortFunc(teams, func(a, b *domain.Team) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return paginate(teams, filter.ListOptions), nil
}

func (m memTeams) Update(ctx context.Context, team *domain.Team, expected int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.teams[team.ID]
	if !ok {
		return domain.ErrNotFound("team %s not found", team.ID)
	}
	if stored.Version != expected {
		return domain.ErrConflict("team %s was modified concurrently", team.ID)
	}
	team.Version = expected + 1
	m.s.teams[team.ID] = team.Clone()
	return nil
}

func (m memTeams) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.teams[id]; !ok {
		return domain.ErrNotFound("team %s not found", id)
	}
	delete(m.s.teams, id)
	return nil
}

// Tasks

type memTasks struct{ s *MemoryStore }

var taskScope = teamScoped[domain.Task]{
	teamOf: func(t *domain.Task) uuid.UUID { return t.TeamID },
	compare: func(a, b *domain.Task) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	},
	clone: cloneTask,
}

func (m memTasks) Create(ctx context.Context, task *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m memTasks) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	t, ok := m.s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound("task %s not found", id)
	}
	return cloneTask(t), nil
}

func (m memTasks) List(ctx context.Context, teamID *uuid.UUID, opts ListOptions) ([]*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return taskScope.list(m.s.tasks, teamID, opts), nil
}

func (m memTasks) Update(ctx context.Context, task *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.tasks[task.ID]; !ok {
		return domain.ErrNotFound("task %s not found", task.ID)
	}
	m.s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m memTasks) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.tasks[id]; !ok {
		return domain.ErrNotFound("task %s not found", id)
	}
	delete(m.s.tasks, id)
	return nil
}

func (m memTasks) DeleteByTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return taskScope.deleteByTeam(m.s.tasks, teamID), nil
}

func (m memTasks) CountByTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return taskScope.countByTeam(m.s.tasks, teamID), nil
}

// Meetings

type memMeetings struct{ s *MemoryStore }

var meetingScope = teamScoped[domain.Meeting]{
	teamOf: func(m *domain.Meeting) uuid.UUID { return m.TeamID },
	compare: func(a, b *domain.Meeting) int {
		return cmp.Or(a.StartTime.Compare(b.StartTime), strings.Compare(a.ID.String(), b.ID.String()))
	},
	clone: cloneMeeting,
}

func (m memMeetings) Create(ctx context.Context, meeting *domain.Meeting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.meetings[meeting.ID] = cloneMeeting(meeting)
	return nil
}

func (m memMeetings) GetByID(ctx context.Context, id uuid.UUID) (*domain.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	meeting, ok := m.s.meetings[id]
	if !ok {
		return nil, domain.ErrNotFound("meeting %s not found", id)
	}
	return cloneMeeting(meeting), nil
}

func (m memMeetings) List(ctx context.Context, teamID *uuid.UUID, opts ListOptions) ([]*domain.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return meetingScope.list(m.s.meetings, teamID, opts), nil
}

func (m memMeetings) Update(ctx context.Context, meeting *domain.Meeting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.meetings[meeting.ID]; !ok {
		return domain.ErrNotFound("meeting %s not found", meeting.ID)
	}
	m.s.meetings[meeting.ID] = cloneMeeting(meeting)
	return nil
}

func (m memMeetings) AddParticipant(ctx context.Context, id, userID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	meeting, ok := m.s.meetings[id]
	if !ok {
		return domain.ErrNotFound("meeting %s not found", id)
	}
	meeting.AddParticipant(userID)
	return nil
}

func (m memMeetings) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.meetings[id]; !ok {
		return domain.ErrNotFound("meeting %s not found", id)
	}
	delete(m.s.meetings, id)
	return nil
}

func (m memMeetings) DeleteByTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return meetingScope.deleteByTeam(m.s.meetings, teamID), nil
}

func (m memMeetings) CountByTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return meetingScope.countByTeam(m.s.meetings, teamID), nil
}

// Files

type memFiles struct{ s *MemoryStore }

var fileScope = teamScoped[domain.File]{
	teamOf: func(f *domain.File) uuid.UUID { return f.TeamID },
	compare: func(a, b *domain.File) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	},
	clone: cloneFile,
}

func (m memFiles) Create(ctx context.Context, f *domain.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.files[f.ID] = cloneFile(f)
	return nil
}

func (m memFiles) GetByID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	f, ok := m.s.files[id]
	if !ok {
		return nil, domain.ErrNotFound("file %s not found", id)
	}
	return cloneFile(f), nil
}

func (m memFiles) List(ctx context.Context, teamID *uuid.UUID, opts ListOptions) ([]*domain.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return fileScope.list(m.s.files, teamID, opts), nil
}

func (m memFiles) Update(ctx context.Context, f *domain.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.files[f.ID]; !ok {
		return domain.ErrNotFound("file %s not found", f.ID)
	}
	m.s.files[f.ID] = cloneFile(f)
	return nil
}

func (m memFiles) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.files[id]; !ok {
		return domain.ErrNotFound("file %s not found", id)
	}
	delete(m.s.files, id)
	return nil
}

func (m memFiles) DeleteByTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return fileScope.deleteByTeam(m.s.files, teamID), nil
}

func (m memFiles) CountByTeam(ctx context.Context, teamID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return fileScope.countByTeam(m.s.files, teamID), nil
}

// Activities

type memActivities struct{ s *MemoryStore }

func (m memActivities) Append(ctx context.Context, a *domain.Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.activityIDs[a.ID]; ok {
		return nil
	}
	c := *a
	m.s.activityIDs[a.ID] = struct{}{}
	m.s.activities = append(m.s.activities, &c)
	return nil
}

func (m memActivities) matching(teamID *uuid.UUID, typ domain.ActivityType) []*domain.Activity {
	var out []*domain.Activity
	for _, a := range m.s.activities {
		if teamID != nil && (a.TeamID == nil || *a.TeamID != *teamID) {
			continue
		}
		if typ != "" && a.Type != typ {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	return out
}

func (m memActivities) List(ctx context.Context, filter domain.ActivityFilter) ([]*domain.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := m.matching(filter.TeamID, filter.Type)
	slices.SortStableFunc(out, func(a, b *domain.Activity) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return paginate(out, ListOptions{Limit: filter.Limit, Offset: filter.Offset}), nil
}

func (m memActivities) CountByType(ctx context.Context, teamID *uuid.UUID) ([]domain.ActivityCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	counts := make(map[domain.ActivityType]int64)
	for _, a := range m.matching(teamID, "") {
		counts[a.Type]++
	}
	out := make([]domain.ActivityCount, 0, len(counts))
	for typ, n := range counts {
		out = append(out, domain.ActivityCount{Type: typ, Count: n})
	}
	slices.SortFunc(out, func(a, b domain.ActivityCount) int {
		return strings.Compare(string(a.Type), string(b.Type))
	})
	return out, nil
}
