package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/events"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/publish"
)

// Lead window defaults.
const (
	DefaultMinLead = time.Minute
	DefaultMaxLead = 365 * 24 * time.Hour
)

var (
	ErrNoScheduleTime = errors.New("scheduled time is required")
	ErrTooSoon        = errors.New("scheduled time is below the minimum lead")
	ErrTooFar         = errors.New("scheduled time is beyond the maximum lead")
)

// Strategy defers publication to a Registry task. Publish returns as soon as
// the task is registered; the status change happens on a worker.
type Strategy struct {
	registry *Registry
	logger   *logging.Logger
	sink     events.Sink
	clock    publish.Clock
	minLead  time.Duration
	maxLead  time.Duration
	rules    publish.Rules
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Strategy) { s.logger = l }
}

// WithSink sets the event sink.
func WithSink(sink events.Sink) Option {
	return func(s *Strategy) { s.sink = sink }
}

// WithClock pins the time source used for lead checks and timestamps.
func WithClock(c publish.Clock) Option {
	return func(s *Strategy) { s.clock = c }
}

// WithLeadWindow bounds how far ahead content may be scheduled. Non-positive
// values keep the defaults.
func WithLeadWindow(min, max time.Duration) Option {
	return func(s *Strategy) {
		if min > 0 {
			s.minLead = min
		}
		if max > 0 {
			s.maxLead = max
		}
	}
}

// WithMinBodyLength overrides publish.DefaultMinBodyLength.
func WithMinBodyLength(n int) Option {
	return func(s *Strategy) { s.rules.MinBodyLength = n }
}

// NewStrategy creates a scheduled strategy backed by registry.
func NewStrategy(registry *Registry, opts ...Option) *Strategy {
	s := &Strategy{
		registry: registry,
		minLead:  DefaultMinLead,
		maxLead:  DefaultMaxLead,
		rules: publish.Rules{
			MinRole:       content.RoleEditor,
			Statuses:      []content.Status{content.StatusDraft, content.StatusReview},
			MinBodyLength: publish.DefaultMinBodyLength,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named(publish.NameScheduled)
	if s.sink == nil {
		s.sink = events.Discard
	}
	return s
}

func (s *Strategy) Name() string  { return publish.NameScheduled }
func (s *Strategy) Priority() int { return 60 }

// Validate applies the base rules, the lead window and the registry capacity.
func (s *Strategy) Validate(_ context.Context, item content.Item, req *publish.Request) error {
	const op = "scheduled.validate"
	if err := s.rules.Check(op, item, req); err != nil {
		return publish.Wrap(err, publish.KindValidation, op, "", s.Name())
	}
	if err := s.checkWindow(op, item, req); err != nil {
		return err
	}
	// Rescheduling an id replaces its task, so it needs no new slot.
	if _, ok := s.registry.Get(item.ID()); ok {
		return nil
	}
	if err := s.registry.capacityErr(); err != nil {
		return publish.Validation(op, item.ID(), "Publishing cannot be scheduled right now.", err).
			WithStrategy(s.Name())
	}
	return nil
}

func (s *Strategy) checkWindow(op string, item content.Item, req *publish.Request) error {
	if req.ScheduledFor == nil {
		return publish.Validation(op, item.ID(), "Choose a date and time to schedule publication.", ErrNoScheduleTime).
			WithStrategy(s.Name())
	}
	lead := req.ScheduledFor.Sub(s.clock.Now())
	switch {
	case lead < s.minLead:
		return publish.Validation(op, item.ID(),
			fmt.Sprintf("Scheduled time must be at least %s in the future.", s.minLead),
			fmt.Errorf("%w: %s < %s", ErrTooSoon, lead.Round(time.Second), s.minLead)).WithStrategy(s.Name())
	case lead > s.maxLead:
		return publish.Validation(op, item.ID(),
			fmt.Sprintf("Scheduled time must be within %d days.", int(s.maxLead/(24*time.Hour))),
			fmt.Errorf("%w: %s > %s", ErrTooFar, lead.Round(time.Second), s.maxLead)).WithStrategy(s.Name())
	}
	return nil
}

// Publish registers the delayed task, marks item as awaiting publication,
// and returns without waiting for the task.
func (s *Strategy) Publish(ctx context.Context, item content.Item, req *publish.Request) error {
	const op = "scheduled.publish"
	if err := publish.RequireArgs(op, item, req); err != nil {
		return publish.Wrap(err, publish.KindValidation, op, "", s.Name())
	}
	if req.ScheduledFor == nil {
		return publish.Validation(op, item.ID(), "Choose a date and time to schedule publication.", ErrNoScheduleTime).
			WithStrategy(s.Name())
	}
	fireAt := *req.ScheduledFor
	actor := req.Actor()

	prevAt, hadPrev := item.ScheduledFor()
	item.MarkScheduled(fireAt)

	h, err := s.registry.Schedule(TaskSpec{
		ContentID: item.ID(),
		FireAt:    fireAt,
		Run:       s.deferred(item, actor, fireAt),
		OnCancel:  s.onCancel(item, actor),
	})
	if err != nil {
		if hadPrev {
			item.MarkScheduled(prevAt)
		} else {
			item.ClearSchedule()
		}
		return publish.Validation(op, item.ID(), "Publishing cannot be scheduled right now.", err).
			WithStrategy(s.Name())
	}
	item.Touch(actor.ID, s.clock.Now())

	events.Emit(ctx, s.sink, s.logger, events.New(events.TypeScheduled, item.ID(),
		events.MetaStrategy, s.Name(),
		events.MetaActor, actor.ID,
		events.MetaScheduledFor, fireAt.UTC().Format(time.RFC3339)))
	s.logger.Info(ctx, "publication scheduled",
		zap.String("content.id", item.ID()),
		zap.String("task.id", h.ID()),
		zap.Time("fire_at", fireAt),
		zap.Bool("replaced", h.Superseded() != nil))
	return nil
}

// deferred is the task body. Failures become KindDeferred errors and an
// error event; nothing reaches the original caller. The task does nothing
// once the item no longer carries fireAt as its schedule, which happens when
// another path published it in the meantime.
func (s *Strategy) deferred(item content.Item, actor content.Actor, fireAt time.Time) func(context.Context) error {
	return func(ctx context.Context) error {
		const op = "scheduled.execute"
		if err := ctx.Err(); err != nil {
			return publish.Deferred(op, item.ID(), err).WithStrategy(s.Name())
		}
		if at, ok := item.ScheduledFor(); !ok || !at.Equal(fireAt) {
			s.logger.Info(ctx, "scheduled publication skipped, schedule no longer current",
				zap.String("content.id", item.ID()),
				zap.Time("fire_at", fireAt),
				zap.String("status", string(item.Status())))
			events.Emit(ctx, s.sink, s.logger, events.New(events.TypeScheduleCancelled, item.ID(),
				events.MetaStrategy, s.Name(),
				events.MetaActor, actor.ID,
				events.MetaComment, "stale"))
			return nil
		}

		republished, err := publish.MarkPublished(item, actor.ID, s.clock.Now())
		if err != nil {
			derr := publish.Deferred(op, item.ID(), err).WithStrategy(s.Name())
			events.Emit(ctx, s.sink, s.logger, events.New(events.TypeError, item.ID(),
				events.MetaStrategy, s.Name(),
				events.MetaError, derr.UserMessage()))
			return derr
		}

		typ := events.TypePublished
		if republished {
			typ = events.TypeRepublished
		}
		events.Emit(ctx, s.sink, s.logger, events.New(typ, item.ID(),
			events.MetaStrategy, s.Name(),
			events.MetaActor, actor.ID))
		s.logger.Info(ctx, "scheduled content published", zap.Bool("republished", republished))
		return nil
	}
}

func (s *Strategy) onCancel(item content.Item, actor content.Actor) func(CancelReason) {
	return func(reason CancelReason) {
		if reason != CancelReplaced {
			item.ClearSchedule()
		}
		events.Emit(context.Background(), s.sink, s.logger, events.New(events.TypeScheduleCancelled, item.ID(),
			events.MetaStrategy, s.Name(),
			events.MetaActor, actor.ID,
			events.MetaComment, reason.String()))
	}
}

// CancelScheduledPublishing removes the pending task for contentID and
// reports whether one was found.
func (s *Strategy) CancelScheduledPublishing(ctx context.Context, contentID string) bool {
	found := s.registry.Cancel(contentID)
	s.logger.Info(ctx, "scheduled publication cancel requested",
		zap.String("content.id", contentID),
		zap.Bool("found", found))
	return found
}

// Registry exposes the underlying registry.
func (s *Strategy) Registry() *Registry { return s.registry }

// EstimateDuration reports the delay until the scheduled time.
func (s *Strategy) EstimateDuration(_ content.Item, req *publish.Request) (time.Duration, bool) {
	if req.ScheduledFor == nil {
		return 0, false
	}
	d := req.ScheduledFor.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	return d, true
}

var (
	_ publish.Strategy          = (*Strategy)(nil)
	_ publish.DurationEstimator = (*Strategy)(nil)
)
