package publish

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/events"
)

const immediateEstimate = 50 * time.Millisecond

// ImmediateStrategy publishes synchronously. Publishing content that is
// already published is a republish: it emits TypeRepublished and leaves the
// published timestamp alone.
type ImmediateStrategy struct {
	opts  options
	rules Rules
}

// NewImmediateStrategy creates an ImmediateStrategy.
func NewImmediateStrategy(opts ...Option) *ImmediateStrategy {
	o := newOptions(NameImmediate, opts)
	return &ImmediateStrategy{
		opts: o,
		rules: Rules{
			MinRole:       content.RoleEditor,
			Statuses:      []content.Status{content.StatusDraft, content.StatusReview, content.StatusPublished},
			MinBodyLength: o.minBody,
		},
	}
}

func (s *ImmediateStrategy) Name() string  { return NameImmediate }
func (s *ImmediateStrategy) Priority() int { return 80 }

// Capabilities reports rollback support.
func (s *ImmediateStrategy) Capabilities() Capabilities {
	return Capabilities{SupportsRollback: true}
}

// Validate checks fields, Editor role, status and body length.
func (s *ImmediateStrategy) Validate(_ context.Context, item content.Item, req *Request) error {
	return tag(s.rules.Check("immediate.validate", item, req), NameImmediate)
}

// Publish marks item published and emits the publish event.
func (s *ImmediateStrategy) Publish(ctx context.Context, item content.Item, req *Request) error {
	const op = "immediate.publish"
	if err := RequireArgs(op, item, req); err != nil {
		return tag(err, NameImmediate)
	}
	return s.opts.publishNow(ctx, op, NameImmediate, item, req)
}

// Rollback returns published content to Draft. The published timestamp is
// kept so a later republish does not reset it.
func (s *ImmediateStrategy) Rollback(ctx context.Context, item content.Item, req *Request) error {
	const op = "immediate.rollback"
	if err := RequireArgs(op, item, req); err != nil {
		return tag(err, NameImmediate)
	}
	actor := req.Actor()
	if err := CheckRole(op, item, actor, content.RoleEditor); err != nil {
		return tag(err, NameImmediate)
	}
	if item.Status() != content.StatusPublished {
		return Validation(op, item.ID(), "Only published content can be rolled back.", ErrRollbackNotAllowed).
			WithStrategy(NameImmediate)
	}
	if err := item.SetStatus(content.StatusDraft); err != nil {
		return Execution(op, item.ID(), "", err).WithStrategy(NameImmediate)
	}
	item.Touch(actor.ID, s.opts.clock.Now())

	events.Emit(ctx, s.opts.sink, s.opts.logger, events.New(events.TypeRolledBack, item.ID(),
		events.MetaStrategy, NameImmediate,
		events.MetaActor, actor.ID))
	s.opts.logger.Info(ctx, "content rolled back", zap.String("content.id", item.ID()))
	return nil
}

// EstimateDuration returns a fixed small estimate.
func (s *ImmediateStrategy) EstimateDuration(content.Item, *Request) (time.Duration, bool) {
	return immediateEstimate, true
}

var (
	_ Strategy           = (*ImmediateStrategy)(nil)
	_ Rollbacker         = (*ImmediateStrategy)(nil)
	_ CapabilityReporter = (*ImmediateStrategy)(nil)
	_ DurationEstimator  = (*ImmediateStrategy)(nil)
)
