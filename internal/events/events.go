// Package events carries publishing notifications to observers.
//
// Delivery is fire-and-forget: a Sink error is logged by the caller and never
// fails the operation that produced the event.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/logging"
)

// Type is the fixed event vocabulary.
type Type string

const (
	TypeSubmittedForReview Type = "submitted_for_review"
	TypeReviewed           Type = "reviewed"
	TypeRejected           Type = "rejected"
	TypePublished          Type = "published"
	TypeRepublished        Type = "republished"
	TypeScheduled          Type = "scheduled"
	TypeScheduleCancelled  Type = "schedule_cancelled"
	TypeWithdrawn          Type = "withdrawn"
	TypeRolledBack         Type = "rolled_back"
	TypeError              Type = "error"
)

// Metadata keys used across the engine.
const (
	MetaStrategy     = "strategy"
	MetaActor        = "actor"
	MetaReviewer     = "reviewer"
	MetaDecision     = "decision"
	MetaComment      = "comment"
	MetaScheduledFor = "scheduled_for"
	MetaError        = "error"
	MetaApprovals    = "approvals"
	MetaRequired     = "required"
)

// Event is a single notification.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	ContentID  string            `json:"content_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// New builds an event with a fresh id. kv is a flat list of metadata
// key/value pairs; a trailing odd key is ignored.
func New(typ Type, contentID string, kv ...string) Event {
	e := Event{
		ID:         uuid.NewString(),
		Type:       typ,
		ContentID:  contentID,
		OccurredAt: time.Now().UTC(),
		Metadata:   make(map[string]string, len(kv)/2),
	}
	for i := 0; i+1 < len(kv); i += 2 {
		e.Metadata[kv[i]] = kv[i+1]
	}
	return e
}

// Sink receives events.
type Sink interface {
	Notify(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Emit delivers e and logs a delivery failure without returning it.
func Emit(ctx context.Context, sink Sink, logger *logging.Logger, e Event) {
	if sink == nil {
		return
	}
	if err := sink.Notify(ctx, e); err != nil {
		logging.OrNop(logger).Warn(ctx, "event delivery failed",
			zap.String("event.type", string(e.Type)),
			zap.String("content.id", e.ContentID),
			zap.Error(err))
	}
}

// MemorySink records events in order. Safe for concurrent use.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewMemorySink creates an empty recording sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Notify records e, then returns the configured failure if any.
func (m *MemorySink) Notify(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

// FailWith makes subsequent Notify calls return err after recording.
func (m *MemorySink) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Events returns a copy of the recorded events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfType returns recorded events with the given type.
func (m *MemorySink) OfType(t Type) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Types returns the recorded event types in order.
func (m *MemorySink) Types() []Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Type, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// Reset clears recorded events.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// LogSink writes events to a logger at Info.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a sink that logs each event.
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logging.OrNop(logger).Named("events")}
}

// Notify logs e.
func (s *LogSink) Notify(ctx context.Context, e Event) error {
	fields := make([]zap.Field, 0, 4+len(e.Metadata))
	fields = append(fields,
		zap.String("event.id", e.ID),
		zap.String("event.type", string(e.Type)),
		zap.String("content.id", e.ContentID),
		zap.Time("occurred_at", e.OccurredAt),
	)
	for k, v := range e.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}
	s.logger.Info(ctx, "publishing event", fields...)
	return nil
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

// Notify delivers e to all sinks even when some fail.
func (f Fanout) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
