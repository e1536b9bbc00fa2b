// Package activity emits ledger events for successful mutations and delivers
// them to the ledger off the request path. Delivery is best effort: a lost or
// failed ledger write never fails the mutation that produced it.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// Emitter accepts ledger events. Emit must not block on I/O and has no error
// to return; implementations log their own failures.
type Emitter interface {
	Emit(ctx context.Context, a domain.Activity)
}

// Sink receives events from a Recorder. Both the ledger store and the Kafka
// publisher are sinks.
type Sink interface {
	Append(ctx context.Context, a *domain.Activity) error
}

// New builds an activity stamped with a fresh id and the current time.
// teamID may be uuid.Nil for events without a team.
func New(teamID, userID uuid.UUID, typ domain.ActivityType, description, relatedID string) domain.Activity {
	a := domain.Activity{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        typ,
		Description: description,
		RelatedID:   relatedID,
		CreatedAt:   time.Now().UTC(),
	}
	if teamID != uuid.Nil {
		a.TeamID = &teamID
	}
	return a
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
}

// Recorder is an Emitter that queues events on a bounded channel and hands
// them to a Sink from a single worker goroutine. When the queue is full the
// event is dropped and logged.
type Recorder struct {
	sink    Sink
	log     *logger.Logger
	queue   chan domain.Activity
	timeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

// NewRecorder starts a recorder writing to sink.
func NewRecorder(sink Sink, log *logger.Logger, cfg RecorderConfig) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	r := &Recorder{
		sink:    sink,
		log:     log.Named("activity"),
		queue:   make(chan domain.Activity, cfg.BufferSize),
		timeout: cfg.WriteTimeout,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Emit queues a for delivery.
func (r *Recorder) Emit(ctx context.Context, a domain.Activity) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.log.Warn("activity dropped after close", "activity_type", a.Type, "activity_id", a.ID)
		return
	}
	select {
	case r.queue <- a:
	default:
		r.log.WithContext(ctx).Warn("activity queue full, dropping event",
			"activity_type", a.Type, "activity_id", a.ID, "user_id", a.UserID)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for a := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.sink.Append(ctx, &a); err != nil {
			r.log.Error("failed to write activity",
				"activity_type", a.Type, "activity_id", a.ID, "user_id", a.UserID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits until queued events are delivered
// or ctx ends.
func (r *Recorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Discard is an Emitter that drops every event.
type Discard struct{}

// Emit implements Emitter.
func (Discard) Emit(context.Context, domain.Activity) {}
