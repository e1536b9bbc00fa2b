package membership

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []domain.Activity
}

func (c *captureEmitter) Emit(_ context.Context, a domain.Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, a)
}

func (c *captureEmitter) types() []domain.ActivityType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ActivityType, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

type recordingCache struct{ invalidated []uuid.UUID }

func (r *recordingCache) Invalidate(_ context.Context, id uuid.UUID) error {
	r.invalidated = append(r.invalidated, id)
	return nil
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	stores  repository.Stores
	events  *captureEmitter
	cache   *recordingCache
	manager *Manager
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		stores: repository.NewMemoryStore().Stores(),
		events: &captureEmitter{},
		cache:  &recordingCache{},
	}
	h.manager = NewManager(cfg, h.stores, h.events, h.cache, logger.NewNop())
	return h
}

func (h *harness) user(name string, role domain.Role) domain.Principal {
	h.t.Helper()
	u := &domain.User{
		ID:     uuid.New(),
		Email:  name + "@example.com",
		Name:   name,
		Role:   role,
		Status: domain.UserStatusActive,
	}
	require.NoError(h.t, h.stores.Users.Create(h.ctx, u))
	return u.Principal()
}

func (h *harness) getUser(id uuid.UUID) *domain.User {
	h.t.Helper()
	u, err := h.stores.Users.GetByID(h.ctx, id)
	require.NoError(h.t, err)
	return u
}

func (h *harness) getTeam(id uuid.UUID) *domain.Team {
	h.t.Helper()
	team, err := h.stores.Teams.GetByID(h.ctx, id)
	require.NoError(h.t, err)
	return team
}

func (h *harness) createTeam(p domain.Principal, name string) *domain.Team {
	h.t.Helper()
	team, err := h.manager.CreateTeam(h.ctx, p, CreateTeamInput{Name: name})
	require.NoError(h.t, err)
	return team
}

func requireReason(t *testing.T, err error, reason string) {
	t.Helper()
	var forbidden *domain.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, reason, forbidden.Reason)
}

func requireInvalidState(t *testing.T, err error, msg string) {
	t.Helper()
	var invalid *domain.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, msg, invalid.Message)
}

func TestCreateTeam(t *testing.T) {
	t.Run("actor becomes sole lead", func(t *testing.T) {
		h := newHarness(t, Config{})
		lead := h.user("lead", domain.RoleLead)

		team := h.createTeam(lead, "Platform")

		stored := h.getTeam(team.ID)
		require.Len(t, stored.Members, 1)
		assert.Equal(t, lead.UserID, stored.Members[0].UserID)
		assert.Equal(t, domain.TeamRoleLead, stored.Members[0].Role)
		assert.Equal(t, lead.UserID, stored.CreatedBy)
		assert.Equal(t, int64(1), stored.Version)
		assert.True(t, h.getUser(lead.UserID).InTeam(team.ID))
		assert.Equal(t, []domain.ActivityType{domain.ActivityTeamCreated}, h.events.types())
	})

	t.Run("admin without lead occupies the lead slot", func(t *testing.T) {
		h := newHarness(t, Config{})
		admin := h.user("admin", domain.RoleAdmin)

		team := h.createTeam(admin, "Ops")
		assert.True(t, team.IsLead(admin.UserID))
		assert.Equal(t, admin.UserID, team.CreatedBy)
		assert.True(t, h.getUser(admin.UserID).InTeam(team.ID))
	})

	t.Run("admin designates a global lead", func(t *testing.T) {
		h := newHarness(t, Config{})
		admin := h.user("admin", domain.RoleAdmin)
		lead := h.user("lead", domain.RoleLead)

		team, err := h.manager.CreateTeam(h.ctx, admin, CreateTeamInput{Name: "Data", LeadID: &lead.UserID})
		require.NoError(t, err)
		assert.Equal(t, lead.UserID, team.CreatedBy)
		assert.Equal(t, []uuid.UUID{lead.UserID}, team.MemberIDs())
		assert.True(t, h.getUser(lead.UserID).InTeam(team.ID))
		assert.False(t, h.getUser(admin.UserID).InTeam(team.ID))
	})

	t.Run("designated lead must hold LEAD", func(t *testing.T) {
		h := newHarness(t, Config{})
		admin := h.user("admin", domain.RoleAdmin)
		member := h.user("member", domain.RoleMember)

		_, err := h.manager.CreateTeam(h.ctx, admin, CreateTeamInput{Name: "Data", LeadID: &member.UserID})
		requireInvalidState(t, err, "Team lead must have the LEAD role")

		missing := uuid.New()
		_, err = h.manager.CreateTeam(h.ctx, admin, CreateTeamInput{Name: "Data", LeadID: &missing})
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("non-admin lead id is ignored", func(t *testing.T) {
		h := newHarness(t, Config{})
		member := h.user("member", domain.RoleMember)
		other := h.user("other", domain.RoleLead)

		team, err := h.manager.CreateTeam(h.ctx, member, CreateTeamInput{Name: "Side", LeadID: &other.UserID})
		require.NoError(t, err)
		assert.Equal(t, member.UserID, team.CreatedBy)
	})

	t.Run("validation and inactive actor", func(t *testing.T) {
		h := newHarness(t, Config{})
		lead := h.user("lead", domain.RoleLead)

		_, err := h.manager.CreateTeam(h.ctx, lead, CreateTeamInput{})
		var invalid *domain.ValidationError
		assert.ErrorAs(t, err, &invalid)

		lead.Status = domain.UserStatusInactive
		_, err = h.manager.CreateTeam(h.ctx, lead, CreateTeamInput{Name: "X"})
		requireReason(t, err, "Your account is inactive")
	})
}

func TestAddRemoveMember(t *testing.T) {
	h := newHarness(t, Config{})
	lead := h.user("lead", domain.RoleLead)
	member := h.user("member", domain.RoleMember)
	team := h.createTeam(lead, "Platform")

	_, err := h.manager.AddMember(h.ctx, lead, team.ID, member.UserID, 0)
	require.NoError(t, err)
	assert.True(t, h.getTeam(team.ID).HasMember(member.UserID))
	assert.True(t, h.getUser(member.UserID).InTeam(team.ID))

	_, err = h.manager.AddMember(h.ctx, lead, team.ID, member.UserID, domain.TeamRoleMember)
	requireInvalidState(t, err, "User is already a member of this team")
	assert.Len(t, h.getTeam(team.ID).Members, 2, "no duplicate membership")

	_, err = h.manager.RemoveMember(h.ctx, lead, team.ID, member.UserID)
	require.NoError(t, err)
	assert.False(t, h.getTeam(team.ID).HasMember(member.UserID))
	assert.False(t, h.getUser(member.UserID).InTeam(team.ID))

	version := h.getTeam(team.ID).Version
	_, err = h.manager.RemoveMember(h.ctx, lead, team.ID, member.UserID)
	require.NoError(t, err, "second remove is a no-op")
	assert.Equal(t, version, h.getTeam(team.ID).Version)

	assert.Equal(t, []domain.ActivityType{
		domain.ActivityTeamCreated,
		domain.ActivityMemberAdded,
		domain.ActivityMemberRemoved,
	}, h.events.types())
}

func TestAddMember_RepairsBackReferenceOnRetry(t *testing.T) {
	h := newHarness(t, Config{})
	lead := h.user("lead", domain.RoleLead)
	member := h.user("member", domain.RoleMember)
	team := h.createTeam(lead, "Platform")

	// Simulate a crash between the team write and the back-reference push.
	stored := h.getTeam(team.ID)
	stored.AddMember(member.UserID, domain.TeamRoleMember, time.Now())
	require.NoError(t, h.stores.Teams.Update(h.ctx, stored, stored.Version))
	require.False(t, h.getUser(member.UserID).InTeam(team.ID))

	_, err := h.manager.AddMember(h.ctx, lead, team.ID, member.UserID, domain.TeamRoleMember)
	requireInvalidState(t, err, "User is already a member of this team")
	assert.True(t, h.getUser(member.UserID).InTeam(team.ID))
}

func TestAddMember_Rejections(t *testing.T) {
	h := newHarness(t, Config{})
	lead := h.user("lead", domain.RoleLead)
	member := h.user("member", domain.RoleMember)
	outsider := h.user("outsider", domain.RoleLead)
	team := h.createTeam(lead, "Platform")
	_, err := h.manager.AddMember(h.ctx, lead, team.ID, member.UserID, domain.TeamRoleMember)
	require.NoError(t, err)

	t.Run("plain member cannot add", func(t *testing.T) {
		_, err := h.manager.AddMember(h.ctx, member, team.ID, outsider.UserID, domain.TeamRoleMember)
		requireReason(t, err, "Only the team creator, team leads, or admins can manage team members")
	})

	t.Run("lead of another team cannot add", func(t *testing.T) {
		_, err := h.manager.AddMember(h.ctx, outsider, team.ID, outsider.UserID, domain.TeamRoleMember)
		requireReason(t, err, "Only the team creator, team leads, or admins can manage team members")
	})

	t.Run("unknown team and user", func(t *testing.T) {
		_, err := h.manager.AddMember(h.ctx, lead, uuid.New(), member.UserID, domain.TeamRoleMember)
		assert.True(t, domain.IsNotFound(err))
		_, err = h.manager.AddMember(h.ctx, lead, team.ID, uuid.New(), domain.TeamRoleMember)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("inactive user", func(t *testing.T) {
		gone := h.user("gone", domain.RoleMember)
		require.NoError(t, h.stores.Users.Deactivate(h.ctx, gone.UserID))
		_, err := h.manager.AddMember(h.ctx, lead, team.ID, gone.UserID, domain.TeamRoleMember)
		requireInvalidState(t, err, "Cannot add an inactive user")
	})
}

func TestRemoveMember_CreatorAlwaysInvalid(t *testing.T) {
	h := newHarness(t, Config{})
	admin := h.user("admin", domain.RoleAdmin)
	lead := h.user("lead", domain.RoleLead)
	coLead := h.user("colead", domain.RoleLead)
	member := h.user("member", domain.RoleMember)
	outsider := h.user("outsider", domain.RoleMember)
	team := h.createTeam(lead, "Platform")
	_, err := h.manager.AddMember(h.ctx, lead, team.ID, coLead.UserID, domain.TeamRoleLead)
	require.NoError(t, err)
	_, err = h.manager.AddMember(h.ctx, lead, team.ID, member.UserID, domain.TeamRoleMember)
	require.NoError(t, err)

	actors := map[string]domain.Principal{
		"admin":    admin,
		"creator":  lead,
		"co-lead":  coLead,
		"member":   member,
		"outsider": outsider,
	}
	for name, actor := range actors {
		t.Run(name, func(t *testing.T) {
			_, err := h.manager.RemoveMember(h.ctx, actor, team.ID, lead.UserID)
			requireInvalidState(t, err, "Cannot remove the team creator")
		})
	}
	assert.True(t, h.getTeam(team.ID).HasMember(lead.UserID))

	// Other targets still need member-management rights.
	_, err = h.manager.RemoveMember(h.ctx, member, team.ID, coLead.UserID)
	requireReason(t, err, "Only the team creator, team leads, or admins can manage team members")
}

func TestTransferLeadership(t *testing.T) {
	t.Run("to a non-member global lead", func(t *testing.T) {
		h := newHarness(t, Config{})
		l1 := h.user("l1", domain.RoleLead)
		l2 := h.user("l2", domain.RoleLead)
		team := h.createTeam(l1, "Platform")

		got, err := h.manager.TransferLeadership(h.ctx, l1, team.ID, l2.UserID)
		require.NoError(t, err)
		assert.Equal(t, l2.UserID, got.CreatedBy)
		assert.Equal(t, []uuid.UUID{l2.UserID}, got.Leads())
		m, ok := got.Member(l1.UserID)
		require.True(t, ok)
		assert.Equal(t, domain.TeamRoleMember, m.Role)
		assert.True(t, h.getUser(l2.UserID).InTeam(team.ID))
	})

	t.Run("demotes every existing lead", func(t *testing.T) {
		h := newHarness(t, Config{})
		l1 := h.user("l1", domain.RoleLead)
		l2 := h.user("l2", domain.RoleLead)
		l3 := h.user("l3", domain.RoleLead)
		team := h.createTeam(l1, "Platform")
		_, err := h.manager.AddMember(h.ctx, l1, team.ID, l2.UserID, domain.TeamRoleLead)
		require.NoError(t, err)
		_, err = h.manager.AddMember(h.ctx, l1, team.ID, l3.UserID, domain.TeamRoleMember)
		require.NoError(t, err)

		got, err := h.manager.TransferLeadership(h.ctx, l1, team.ID, l3.UserID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{l3.UserID}, got.Leads())
		assert.Len(t, got.Members, 3)
	})

	t.Run("target must hold LEAD", func(t *testing.T) {
		h := newHarness(t, Config{})
		l1 := h.user("l1", domain.RoleLead)
		member := h.user("member", domain.RoleMember)
		team := h.createTeam(l1, "Platform")

		_, err := h.manager.TransferLeadership(h.ctx, l1, team.ID, member.UserID)
		requireInvalidState(t, err, "New lead must have the LEAD role")
	})

	t.Run("only creator or admin", func(t *testing.T) {
		h := newHarness(t, Config{})
		l1 := h.user("l1", domain.RoleLead)
		l2 := h.user("l2", domain.RoleLead)
		team := h.createTeam(l1, "Platform")
		_, err := h.manager.AddMember(h.ctx, l1, team.ID, l2.UserID, domain.TeamRoleLead)
		require.NoError(t, err)

		_, err = h.manager.TransferLeadership(h.ctx, l2, team.ID, l2.UserID)
		requireReason(t, err, "Only the team creator or an admin can transfer leadership")
	})

	t.Run("admin temporary lead hands over", func(t *testing.T) {
		h := newHarness(t, Config{})
		admin := h.user("admin", domain.RoleAdmin)
		lead := h.user("lead", domain.RoleLead)
		team := h.createTeam(admin, "Ops")

		got, err := h.manager.TransferLeadership(h.ctx, admin, team.ID, lead.UserID)
		require.NoError(t, err)
		assert.Equal(t, lead.UserID, got.CreatedBy)
		m, _ := got.Member(admin.UserID)
		assert.Equal(t, domain.TeamRoleMember, m.Role)
	})

	t.Run("no-op transfer does not write", func(t *testing.T) {
		h := newHarness(t, Config{})
		l1 := h.user("l1", domain.RoleLead)
		team := h.createTeam(l1, "Platform")

		got, err := h.manager.TransferLeadership(h.ctx, l1, team.ID, l1.UserID)
		require.NoError(t, err)
		assert.Equal(t, team.Version, got.Version)
		assert.Equal(t, []domain.ActivityType{domain.ActivityTeamCreated}, h.events.types())
	})
}

func TestUpdateTeam(t *testing.T) {
	h := newHarness(t, Config{})
	lead := h.user("lead", domain.RoleLead)
	coLead := h.user("colead", domain.RoleLead)
	team := h.createTeam(lead, "Platform")
	_, err := h.manager.AddMember(h.ctx, lead, team.ID, coLead.UserID, domain.TeamRoleLead)
	require.NoError(t, err)

	name := "Platform Core"
	archived := domain.TeamStatusArchived
	got, err := h.manager.UpdateTeam(h.ctx, lead, team.ID, UpdateTeamInput{Name: &name, Status: &archived})
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)
	assert.Equal(t, domain.TeamStatusArchived, got.Status)

	_, err = h.manager.UpdateTeam(h.ctx, coLead, team.ID, UpdateTeamInput{Name: &name})
	requireReason(t, err, "Only the team creator or an admin can update this team")

	bad := domain.TeamStatus("gone")
	_, err = h.manager.UpdateTeam(h.ctx, lead, team.ID, UpdateTeamInput{Status: &bad})
	var invalid *domain.ValidationError
	assert.ErrorAs(t, err, &invalid)
}

func TestGetAndListTeams(t *testing.T) {
	h := newHarness(t, Config{})
	admin := h.user("admin", domain.RoleAdmin)
	lead := h.user("lead", domain.RoleLead)
	outsider := h.user("outsider", domain.RoleMember)
	mine := h.createTeam(lead, "Mine")
	h.createTeam(admin, "Other")

	_, err := h.manager.GetTeam(h.ctx, outsider, mine.ID)
	requireReason(t, err, "You are not a member of this team")

	got, err := h.manager.GetTeam(h.ctx, admin, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	teams, err := h.manager.ListTeams(h.ctx, lead, false, repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, mine.ID, teams[0].ID)

	_, err = h.manager.ListTeams(h.ctx, lead, true, repository.ListOptions{})
	requireReason(t, err, "Only admins can view all teams")

	all, err := h.manager.ListTeams(h.ctx, admin, true, repository.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteTeam(t *testing.T) {
	setup := func(t *testing.T, policy DeletePolicy) (*harness, domain.Principal, domain.Principal, *domain.Team) {
		h := newHarness(t, Config{DeletePolicy: policy})
		lead := h.user("lead", domain.RoleLead)
		member := h.user("member", domain.RoleMember)
		team := h.createTeam(lead, "Platform")
		_, err := h.manager.AddMember(h.ctx, lead, team.ID, member.UserID, domain.TeamRoleMember)
		require.NoError(t, err)
		require.NoError(t, h.stores.Tasks.Create(h.ctx, &domain.Task{ID: uuid.New(), TeamID: team.ID, Title: "t", CreatedBy: lead.UserID}))
		return h, lead, member, team
	}

	t.Run("orphan leaves dependents", func(t *testing.T) {
		h, lead, member, team := setup(t, DeleteOrphan)

		require.NoError(t, h.manager.DeleteTeam(h.ctx, lead, team.ID))
		_, err := h.stores.Teams.GetByID(h.ctx, team.ID)
		assert.True(t, domain.IsNotFound(err))
		assert.False(t, h.getUser(lead.UserID).InTeam(team.ID))
		assert.False(t, h.getUser(member.UserID).InTeam(team.ID))
		n, _ := h.stores.Tasks.CountByTeam(h.ctx, team.ID)
		assert.Equal(t, int64(1), n)
		assert.Contains(t, h.events.types(), domain.ActivityTeamDeleted)
	})

	t.Run("cascade removes dependents", func(t *testing.T) {
		h, lead, _, team := setup(t, DeleteCascade)

		require.NoError(t, h.manager.DeleteTeam(h.ctx, lead, team.ID))
		n, _ := h.stores.Tasks.CountByTeam(h.ctx, team.ID)
		assert.Zero(t, n)
	})

	t.Run("reject keeps the team", func(t *testing.T) {
		h, lead, member, team := setup(t, DeleteReject)

		err := h.manager.DeleteTeam(h.ctx, lead, team.ID)
		requireInvalidState(t, err, "Team still has tasks, meetings, or files")
		assert.True(t, h.getUser(member.UserID).InTeam(team.ID))
		h.getTeam(team.ID)
	})

	t.Run("member cannot delete", func(t *testing.T) {
		h, _, member, team := setup(t, DeleteOrphan)

		err := h.manager.DeleteTeam(h.ctx, member, team.ID)
		requireReason(t, err, "Only the team creator or an admin can delete this team")
	})
}

func TestDeactivateUser(t *testing.T) {
	h := newHarness(t, Config{})
	admin := h.user("admin", domain.RoleAdmin)
	lead := h.user("lead", domain.RoleLead)
	member := h.user("member", domain.RoleMember)
	teamA := h.createTeam(lead, "A")
	teamB := h.createTeam(lead, "B")
	for _, id := range []uuid.UUID{teamA.ID, teamB.ID} {
		_, err := h.manager.AddMember(h.ctx, lead, id, member.UserID, domain.TeamRoleMember)
		require.NoError(t, err)
	}

	t.Run("admin only and never self", func(t *testing.T) {
		_, err := h.manager.DeactivateUser(h.ctx, lead, member.UserID)
		requireReason(t, err, "Only admins can deactivate users")

		_, err = h.manager.DeactivateUser(h.ctx, admin, admin.UserID)
		requireInvalidState(t, err, "Admins cannot deactivate their own account")
	})

	t.Run("removes user everywhere", func(t *testing.T) {
		got, err := h.manager.DeactivateUser(h.ctx, admin, member.UserID)
		require.NoError(t, err)
		assert.Equal(t, domain.UserStatusInactive, got.Status)

		stored := h.getUser(member.UserID)
		assert.False(t, stored.IsActive())
		assert.Empty(t, stored.Teams)
		assert.False(t, h.getTeam(teamA.ID).HasMember(member.UserID))
		assert.False(t, h.getTeam(teamB.ID).HasMember(member.UserID))
		assert.Contains(t, h.cache.invalidated, member.UserID)
	})

	t.Run("repeat is harmless", func(t *testing.T) {
		before := len(h.events.types())
		_, err := h.manager.DeactivateUser(h.ctx, admin, member.UserID)
		require.NoError(t, err)
		assert.Equal(t, before, len(h.events.types()))
	})
}

// flakyTeams loses the first n compare-and-swaps.
type flakyTeams struct {
	repository.TeamStore
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyTeams) Update(ctx context.Context, team *domain.Team, expected int64) error {
	f.mu.Lock()
	f.calls++
	fail := f.fails > 0
	if fail {
		f.fails--
	}
	f.mu.Unlock()
	if fail {
		return domain.ErrConflict("team %s was modified concurrently", team.ID)
	}
	return f.TeamStore.Update(ctx, team, expected)
}

func TestMutate_RetriesConflicts(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 2})
	lead := h.user("lead", domain.RoleLead)
	member := h.user("member", domain.RoleMember)
	team := h.createTeam(lead, "Platform")

	flaky := &flakyTeams{TeamStore: h.stores.Teams, fails: 2}
	h.manager.teams = flaky
	_, err := h.manager.AddMember(h.ctx, lead, team.ID, member.UserID, domain.TeamRoleMember)
	require.NoError(t, err)
	assert.Equal(t, 3, flaky.calls)

	flaky.fails, flaky.calls = 5, 0
	_, err = h.manager.RemoveMember(h.ctx, lead, team.ID, member.UserID)
	assert.True(t, domain.IsConflict(err), "exhausted retries surface a retryable conflict")
	assert.Equal(t, 3, flaky.calls)
	assert.True(t, h.getTeam(team.ID).HasMember(member.UserID))
}

func TestConcurrentAddMembers_NoLostUpdates(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 50})
	lead := h.user("lead", domain.RoleLead)
	team := h.createTeam(lead, "Platform")

	const n = 20
	users := make([]domain.Principal, n)
	for i := range users {
		users[i] = h.user(uuid.NewString(), domain.RoleMember)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.manager.AddMember(h.ctx, lead, team.ID, u.UserID, domain.TeamRoleMember); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("add member: %v", err)
	}

	stored := h.getTeam(team.ID)
	assert.Len(t, stored.Members, n+1)
	assert.Equal(t, int64(n+1), stored.Version)
}

// brokenUsers fails every back-reference push.
type brokenUsers struct {
	repository.UserStore
}

func (brokenUsers) AddTeam(context.Context, uuid.UUID, uuid.UUID) error {
	return errors.New("connection reset")
}

func TestUnexpectedFailureIsWrapped(t *testing.T) {
	h := newHarness(t, Config{})
	lead := h.user("lead", domain.RoleLead)
	member := h.user("member", domain.RoleMember)
	team := h.createTeam(lead, "Platform")

	h.manager.users = brokenUsers{UserStore: h.stores.Users}
	_, err := h.manager.AddMember(h.ctx, lead, team.ID, member.UserID, domain.TeamRoleMember)
	require.Error(t, err)
	assert.False(t, IsDomainError(err))
	assert.Contains(t, err.Error(), "add_member")

	// The team write already happened; a retry after recovery converges.
	h.manager.users = h.stores.Users
	_, err = h.manager.AddMember(h.ctx, lead, team.ID, member.UserID, domain.TeamRoleMember)
	requireInvalidState(t, err, "User is already a member of this team")
	assert.True(t, h.getUser(member.UserID).InTeam(team.ID))
}

func TestExampleScenario(t *testing.T) {
	h := newHarness(t, Config{})
	l1 := h.user("l1", domain.RoleLead)
	l2 := h.user("l2", domain.RoleLead)
	m1 := h.user("m1", domain.RoleMember)

	t1 := h.createTeam(l1, "t1")
	assert.Equal(t, []domain.Member{{UserID: l1.UserID, Role: domain.TeamRoleLead, JoinedAt: t1.Members[0].JoinedAt}}, t1.Members)

	got, err := h.manager.AddMember(h.ctx, l1, t1.ID, m1.UserID, domain.TeamRoleMember)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{l1.UserID, m1.UserID}, got.MemberIDs())
	assert.Equal(t, []uuid.UUID{t1.ID}, h.getUser(m1.UserID).Teams)

	got, err = h.manager.TransferLeadership(h.ctx, l1, t1.ID, l2.UserID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{l1.UserID, m1.UserID, l2.UserID}, got.MemberIDs())
	role := func(id uuid.UUID) domain.TeamRole {
		m, _ := got.Member(id)
		return m.Role
	}
	assert.Equal(t, domain.TeamRoleMember, role(l1.UserID))
	assert.Equal(t, domain.TeamRoleLead, role(l2.UserID))
	assert.Equal(t, l2.UserID, got.CreatedBy)
	assert.True(t, h.getUser(l2.UserID).InTeam(t1.ID))
}
