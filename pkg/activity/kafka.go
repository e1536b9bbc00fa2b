package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// Writer is the part of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Reader is the part of *kafka.Reader the projector needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is a Sink that writes activities to a Kafka topic as JSON,
// keyed by team id so a team's events stay ordered within a partition.
type Publisher struct {
	writer Writer
}

// NewPublisher creates a publisher for topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

// NewPublisherWithWriter wraps an existing writer. Used by tests.
func NewPublisherWithWriter(w Writer) *Publisher {
	return &Publisher{writer: w}
}

// Append implements Sink.
func (p *Publisher) Append(ctx context.Context, a *domain.Activity) error {
	value, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	key := a.UserID.String()
	if a.TeamID != nil {
		key = a.TeamID.String()
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  a.CreatedAt,
	})
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Projector consumes the activity topic and appends each event to the
// ledger store. Offsets are committed only after a successful append, so a
// crash replays events and the store's id dedup absorbs them.
type Projector struct {
	reader  Reader
	store   Sink
	log     *logger.Logger
	timeout time.Duration
}

// NewProjector creates a projector reading topic as part of groupID.
func NewProjector(brokers []string, topic, groupID string, store Sink, log *logger.Logger) *Projector {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return NewProjectorWithReader(r, store, log)
}

// NewProjectorWithReader wraps an existing reader. Used by tests.
func NewProjectorWithReader(r Reader, store Sink, log *logger.Logger) *Projector {
	return &Projector{
		reader:  r,
		store:   store,
		log:     log.Named("projector"),
		timeout: 10 * time.Second,
	}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (p *Projector) Run(ctx context.Context) error {
	p.log.Info("activity projector started")
	for {
		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				p.log.Info("activity projector stopped")
				return nil
			}
			p.log.Error("failed to fetch activity message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := p.handle(ctx, msg); err != nil {
			p.log.Error("failed to project activity",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}
		if err := p.reader.CommitMessages(ctx, msg); err != nil {
			p.log.Error("failed to commit activity offset",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (p *Projector) handle(ctx context.Context, msg kafka.Message) error {
	var a domain.Activity
	if err := json.Unmarshal(msg.Value, &a); err != nil {
		// Unreadable payloads can never succeed; skip past them.
		p.log.Warn("discarding malformed activity message",
			"partition", msg.Partition, "offset", msg.Offset, "error", err)
		return nil
	}
	hctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.store.Append(hctx, &a)
}

// Close closes the underlying reader.
func (p *Projector) Close() error {
	return p.reader.Close()
}
