package activity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

type failingSink struct{ calls int }

func (f *failingSink) Append(context.Context, *domain.Activity) error {
	f.calls++
	return errors.New("ledger unavailable")
}

// blockingSink holds the worker until release is closed.
type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []domain.ActivityType
}

func (b *blockingSink) Append(_ context.Context, a *domain.Activity) error {
	<-b.release
	b.mu.Lock()
	b.got = append(b.got, a.Type)
	b.mu.Unlock()
	return nil
}

func TestNew(t *testing.T) {
	teamID, userID := uuid.New(), uuid.New()

	a := New(teamID, userID, domain.ActivityMemberAdded, "added", userID.String())
	require.NotNil(t, a.TeamID)
	assert.Equal(t, teamID, *a.TeamID)
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	global := New(uuid.Nil, userID, domain.ActivityUserDeactivated, "deactivated", "")
	assert.Nil(t, global.TeamID)
}

func TestRecorder_DeliversToLedger(t *testing.T) {
	ledger := repository.NewMemoryStore().Stores().Activities
	rec := NewRecorder(ledger, logger.NewNop(), RecorderConfig{BufferSize: 8})

	teamID := uuid.New()
	for i := 0; i < 3; i++ {
		rec.Emit(context.Background(), New(teamID, uuid.New(), domain.ActivityTaskCreated, "task", ""))
	}
	require.NoError(t, rec.Close(context.Background()))

	entries, err := ledger.List(context.Background(), domain.ActivityFilter{TeamID: &teamID})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecorder_SinkFailureIsSwallowed(t *testing.T) {
	sink := &failingSink{}
	rec := NewRecorder(sink, logger.NewNop(), RecorderConfig{})

	rec.Emit(context.Background(), New(uuid.New(), uuid.New(), domain.ActivityTeamCreated, "created", ""))
	require.NoError(t, rec.Close(context.Background()))
	assert.Equal(t, 1, sink.calls)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	rec := NewRecorder(sink, logger.NewNop(), RecorderConfig{BufferSize: 1})

	// First event is taken by the worker, second fills the buffer, the rest drop.
	rec.Emit(context.Background(), New(uuid.Nil, uuid.New(), domain.ActivityTeamCreated, "", ""))
	require.Eventually(t, func() bool { return len(rec.queue) == 0 }, time.Second, 5*time.Millisecond)
	rec.Emit(context.Background(), New(uuid.Nil, uuid.New(), domain.ActivityTeamUpdated, "", ""))
	rec.Emit(context.Background(), New(uuid.Nil, uuid.New(), domain.ActivityTeamDeleted, "", ""))

	close(sink.release)
	require.NoError(t, rec.Close(context.Background()))

	assert.Equal(t, []domain.ActivityType{domain.ActivityTeamCreated, domain.ActivityTeamUpdated}, sink.got)

	// Emit after close is a logged no-op.
	rec.Emit(context.Background(), New(uuid.Nil, uuid.New(), domain.ActivityTeamCreated, "", ""))
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisher_Append(t *testing.T) {
	w := &fakeWriter{}
	pub := NewPublisherWithWriter(w)

	teamID, userID := uuid.New(), uuid.New()
	a := New(teamID, userID, domain.ActivityMemberAdded, "added", "")
	require.NoError(t, pub.Append(context.Background(), &a))

	global := New(uuid.Nil, userID, domain.ActivityUserRoleChanged, "role", "")
	require.NoError(t, pub.Append(context.Background(), &global))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, teamID.String(), string(w.msgs[0].Key))
	assert.Equal(t, userID.String(), string(w.msgs[1].Key), "events without a team key by user")

	var decoded domain.Activity
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, a.ID, decoded.ID)
	assert.Equal(t, domain.ActivityMemberAdded, decoded.Type)

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}

func TestPublisher_WriteError(t *testing.T) {
	pub := NewPublisherWithWriter(&fakeWriter{err: errors.New("broker down")})
	a := New(uuid.New(), uuid.New(), domain.ActivityTeamCreated, "", "")
	assert.Error(t, pub.Append(context.Background(), &a))
}

// fakeReader serves msgs in order and then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	fetchErrs int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetchErrs > 0 {
		r.fetchErrs--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("transient")
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestProjector_Run(t *testing.T) {
	ledger := repository.NewMemoryStore().Stores().Activities
	teamID := uuid.New()

	first := New(teamID, uuid.New(), domain.ActivityMemberAdded, "added", "")
	second := New(teamID, uuid.New(), domain.ActivityMemberRemoved, "removed", "")
	encode := func(a domain.Activity) []byte {
		b, err := json.Marshal(a)
		require.NoError(t, err)
		return b
	}

	reader := &fakeReader{
		fetchErrs: 1,
		msgs: []kafka.Message{
			{Offset: 1, Value: encode(first)},
			{Offset: 2, Value: []byte("not json")},
			{Offset: 3, Value: encode(second)},
			{Offset: 4, Value: encode(first)}, // redelivery
		},
	}
	proj := NewProjectorWithReader(reader, ledger, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- proj.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.committedOffsets()) == 4 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3, 4}, reader.committedOffsets())
	entries, err := ledger.List(context.Background(), domain.ActivityFilter{TeamID: &teamID})
	require.NoError(t, err)
	assert.Len(t, entries, 2, "redelivered event stored once")
}

func TestProjector_DoesNotCommitFailedAppend(t *testing.T) {
	a := New(uuid.New(), uuid.New(), domain.ActivityTeamCreated, "", "")
	b, _ := json.Marshal(a)
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: b}}}
	sink := &failingSink{}
	proj := NewProjectorWithReader(reader, sink, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- proj.Run(ctx) }()

	require.Eventually(t, func() bool {
		reader.mu.Lock()
		defer reader.mu.Unlock()
		return len(reader.msgs) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Empty(t, reader.committedOffsets())
	assert.Equal(t, 1, sink.calls)
}

func TestReporter(t *testing.T) {
	ctx := context.Background()
	stores := repository.NewMemoryStore().Stores()
	lead, outsider, admin := uuid.New(), uuid.New(), uuid.New()

	team := &domain.Team{
		ID:        uuid.New(),
		Name:      "Ops",
		CreatedBy: lead,
		Members:   []domain.Member{{UserID: lead, Role: domain.TeamRoleLead}},
		Status:    domain.TeamStatusActive,
		Version:   1,
	}
	require.NoError(t, stores.Teams.Create(ctx, team))

	for _, typ := range []domain.ActivityType{domain.ActivityTeamCreated, domain.ActivityTaskCreated, domain.ActivityTaskCreated} {
		a := New(team.ID, lead, typ, "", "")
		require.NoError(t, stores.Activities.Append(ctx, &a))
	}
	other := New(uuid.Nil, admin, domain.ActivityUserCreated, "", "")
	require.NoError(t, stores.Activities.Append(ctx, &other))

	rep := NewReporter(stores.Teams, stores.Activities)
	leadP := domain.Principal{UserID: lead, Role: domain.RoleLead, Status: domain.UserStatusActive}
	outsiderP := domain.Principal{UserID: outsider, Role: domain.RoleMember, Status: domain.UserStatusActive}
	adminP := domain.Principal{UserID: admin, Role: domain.RoleAdmin, Status: domain.UserStatusActive}

	t.Run("member reads team ledger", func(t *testing.T) {
		entries, err := rep.List(ctx, leadP, domain.ActivityFilter{TeamID: &team.ID})
		require.NoError(t, err)
		assert.Len(t, entries, 3)
	})

	t.Run("outsider denied", func(t *testing.T) {
		_, err := rep.List(ctx, outsiderP, domain.ActivityFilter{TeamID: &team.ID})
		var forbidden *domain.ForbiddenError
		require.ErrorAs(t, err, &forbidden)
		assert.Equal(t, "You are not a member of this team", forbidden.Reason)
	})

	t.Run("global ledger is admin only", func(t *testing.T) {
		_, err := rep.List(ctx, leadP, domain.ActivityFilter{})
		var forbidden *domain.ForbiddenError
		require.ErrorAs(t, err, &forbidden)
		assert.Equal(t, "Only admins can view all activities", forbidden.Reason)

		entries, err := rep.List(ctx, adminP, domain.ActivityFilter{})
		require.NoError(t, err)
		assert.Len(t, entries, 4)
	})

	t.Run("unknown team", func(t *testing.T) {
		missing := uuid.New()
		_, err := rep.List(ctx, adminP, domain.ActivityFilter{TeamID: &missing})
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("summary", func(t *testing.T) {
		s, err := rep.Summary(ctx, leadP, &team.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), s.Total)
		assert.Contains(t, s.Counts, domain.ActivityCount{Type: domain.ActivityTaskCreated, Count: 2})
	})
}
