package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-team-slim/internal/config"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/activity"
	"github.com/tendant/simple-team-slim/pkg/auth"
	"github.com/tendant/simple-team-slim/pkg/cache"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/membership"
	"github.com/tendant/simple-team-slim/pkg/repository"
	userssvc "github.com/tendant/simple-team-slim/pkg/users"
	"github.com/tendant/simple-team-slim/pkg/work"
)

// ledgerEmitter appends synchronously so tests can read the ledger right away.
type ledgerEmitter struct{ store repository.ActivityStore }

func (e ledgerEmitter) Emit(ctx context.Context, a domain.Activity) {
	_ = e.store.Append(ctx, &a)
}

type testServer struct {
	t      *testing.T
	router http.Handler
	stores repository.Stores
	tokens *auth.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewNop()
	stores := repository.NewMemoryStore().Stores()
	emitter := ledgerEmitter{store: stores.Activities}
	loader := cache.NewLoader(stores.Users, nil, log)
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: []byte("router-test-secret-at-least-32-bytes")})
	require.NoError(t, err)

	manager := membership.NewManager(membership.Config{}, stores, emitter, loader, log)
	router := NewRouter(RouterConfig{
		Logger:             log,
		Tokens:             tokens,
		Principals:         loader,
		Manager:            manager,
		Users:              userssvc.NewService(stores.Users, manager, emitter, loader, log),
		Tasks:              work.NewTaskService(stores, emitter),
		Meetings:           work.NewMeetingService(stores, emitter),
		Files:              work.NewFileService(stores, emitter),
		Reporter:           activity.NewReporter(stores.Teams, stores.Activities),
		SecurityHeaders:    config.SecurityHeadersConfig{Enabled: true, ContentTypeOptions: "nosniff"},
		MaxRequestBodySize: 1 << 16,
	})
	return &testServer{t: t, router: router, stores: stores, tokens: tokens}
}

func (s *testServer) user(name string, role domain.Role) string {
	s.t.Helper()
	u := &domain.User{ID: uuid.New(), Email: name + "@example.com", Name: name, Role: role, Status: domain.UserStatusActive}
	require.NoError(s.t, s.stores.Users.Create(context.Background(), u))
	token, _, err := s.tokens.Issue(u.ID, 0)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) userID(token string) string {
	s.t.Helper()
	id, err := s.tokens.UserID(token)
	require.NoError(s.t, err)
	return id.String()
}

func (s *testServer) do(token, method, path string, body any, out any) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

type teamBody struct {
	ID        string `json:"id"`
	CreatedBy string `json:"created_by"`
	Members   []struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	} `json:"members"`
}

type errBody struct {
	Error string `json:"error"`
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, s.do("", "GET", "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, http.StatusUnauthorized, s.do("", "GET", "/v1/me", nil, nil))
}

func TestRouter_MembershipScenario(t *testing.T) {
	s := newTestServer(t)
	alice := s.user("alice", domain.RoleLead)
	bob := s.user("bob", domain.RoleMember)
	carol := s.user("carol", domain.RoleLead)
	admin := s.user("admin", domain.RoleAdmin)

	var team teamBody
	require.Equal(t, http.StatusCreated, s.do(alice, "POST", "/v1/teams", map[string]any{"name": "Platform"}, &team))
	assert.Equal(t, s.userID(alice), team.CreatedBy)
	path := "/v1/teams/" + team.ID

	require.Equal(t, http.StatusOK, s.do(alice, "POST", path+"/members", map[string]any{"user_id": s.userID(bob)}, &team))
	require.Equal(t, http.StatusOK, s.do(alice, "POST", path+"/members", map[string]any{"user_id": s.userID(carol)}, &team))
	assert.Len(t, team.Members, 3)

	var e errBody
	assert.Equal(t, http.StatusForbidden, s.do(bob, "POST", path+"/tasks", map[string]any{"title": "Ship"}, &e))
	assert.Equal(t, "Only team leads or admins can create tasks", e.Error)

	assert.Equal(t, http.StatusBadRequest, s.do(alice, "DELETE", path+"/members/"+s.userID(alice), nil, &e))
	assert.Equal(t, "Cannot remove the team creator", e.Error)

	require.Equal(t, http.StatusOK, s.do(alice, "POST", path+"/leadership", map[string]any{"new_lead_id": s.userID(carol)}, &team))
	assert.Equal(t, s.userID(carol), team.CreatedBy)
	for _, m := range team.Members {
		if m.UserID == s.userID(carol) {
			assert.Equal(t, "LEAD", m.Role)
		} else {
			assert.Equal(t, "MEMBER", m.Role)
		}
	}

	var me struct {
		ID          string     `json:"id"`
		Teams       []string   `json:"teams"`
		Memberships []teamBody `json:"memberships"`
	}
	require.Equal(t, http.StatusOK, s.do(bob, "GET", "/v1/me", nil, &me))
	assert.Equal(t, []string{team.ID}, me.Teams)
	assert.Len(t, me.Memberships, 1)

	require.Equal(t, http.StatusOK, s.do(admin, "POST", "/v1/users/"+s.userID(bob)+"/deactivate", nil, nil))
	require.Equal(t, http.StatusOK, s.do(carol, "GET", path, nil, &team))
	assert.Len(t, team.Members, 2)
	assert.Equal(t, http.StatusForbidden, s.do(bob, "GET", "/v1/me", nil, &e))
	assert.Equal(t, "Your account is inactive", e.Error)

	var ledger []domain.Activity
	require.Equal(t, http.StatusOK, s.do(carol, "GET", path+"/activities", nil, &ledger))
	types := make([]domain.ActivityType, len(ledger))
	for i, a := range ledger {
		types[i] = a.Type
	}
	assert.Contains(t, types, domain.ActivityLeadershipTransferred)
	assert.Contains(t, types, domain.ActivityMemberRemoved)

	assert.Equal(t, http.StatusForbidden, s.do(carol, "GET", "/v1/activities", nil, nil))
	assert.Equal(t, http.StatusOK, s.do(admin, "GET", "/v1/activities", nil, &ledger))
}

func TestRouter_RequestErrors(t *testing.T) {
	s := newTestServer(t)
	lead := s.user("lead", domain.RoleLead)

	var e errBody
	assert.Equal(t, http.StatusBadRequest, s.do(lead, "GET", "/v1/teams/not-a-uuid", nil, &e))
	assert.Equal(t, "invalid teamID", e.Error)

	assert.Equal(t, http.StatusNotFound, s.do(lead, "GET", "/v1/teams/"+uuid.NewString(), nil, nil))

	assert.Equal(t, http.StatusBadRequest, s.do(lead, "POST", "/v1/teams", map[string]any{"name": ""}, &e))
	assert.Equal(t, "name is required", e.Error)

	assert.Equal(t, http.StatusBadRequest, s.do(lead, "GET", "/v1/teams?limit=-1", nil, nil))
	assert.Equal(t, http.StatusForbidden, s.do(lead, "GET", "/v1/teams?all=true", nil, nil))
	assert.Equal(t, http.StatusForbidden, s.do(lead, "POST", "/v1/users", map[string]any{"email": "x@example.com", "name": "X"}, nil))
}

func TestRouter_WorkEndpoints(t *testing.T) {
	s := newTestServer(t)
	lead := s.user("lead", domain.RoleLead)
	member := s.user("member", domain.RoleMember)

	var team teamBody
	require.Equal(t, http.StatusCreated, s.do(lead, "POST", "/v1/teams", map[string]any{"name": "Ops"}, &team))
	require.Equal(t, http.StatusOK, s.do(lead, "POST", "/v1/teams/"+team.ID+"/members", map[string]any{"user_id": s.userID(member)}, nil))

	var task struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		AssignedTo string `json:"assigned_to"`
	}
	require.Equal(t, http.StatusCreated, s.do(lead, "POST", "/v1/teams/"+team.ID+"/tasks",
		map[string]any{"title": "Rotate keys", "assigned_to": s.userID(member)}, &task))
	assert.Equal(t, "todo", task.Status)
	require.Equal(t, http.StatusOK, s.do(member, "PATCH", "/v1/tasks/"+task.ID, map[string]any{"status": "done"}, &task))
	assert.Equal(t, "done", task.Status)

	var meeting struct {
		ID           string   `json:"id"`
		Participants []string `json:"participants"`
	}
	require.Equal(t, http.StatusCreated, s.do(lead, "POST", "/v1/teams/"+team.ID+"/meetings", map[string]any{
		"title":      "Standup",
		"start_time": "2026-01-05T09:00:00Z",
		"end_time":   "2026-01-05T09:15:00Z",
	}, &meeting))
	require.Equal(t, http.StatusOK, s.do(member, "POST", "/v1/meetings/"+meeting.ID+"/join", nil, &meeting))
	assert.Contains(t, meeting.Participants, s.userID(member))

	var file struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusCreated, s.do(member, "POST", "/v1/teams/"+team.ID+"/files",
		map[string]any{"name": "notes.md", "content_type": "text/markdown", "size_bytes": 12}, &file))
	assert.Equal(t, http.StatusNoContent, s.do(member, "DELETE", "/v1/files/"+file.ID, nil, nil))

	var summary activity.Summary
	require.Equal(t, http.StatusOK, s.do(lead, "GET", "/v1/activities/summary?team_id="+team.ID, nil, &summary))
	assert.Positive(t, summary.Total)
}
