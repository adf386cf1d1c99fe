package review

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/events"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/publish"
)

// Strategy submits content for review. Publish opens the case; the content
// is published later by the decision that reaches the approval threshold.
type Strategy struct {
	wf     *Workflow
	logger *logging.Logger
	sink   events.Sink
	clock  publish.Clock
	rules  publish.Rules
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

// WithClock pins the time source used for publish timestamps.
func WithClock(c publish.Clock) Option {
	return func(s *Strategy) { s.clock = c }
}

// WithMinBodyLength overrides publish.DefaultMinBodyLength.
func WithMinBodyLength(n int) Option {
	return func(s *Strategy) { s.rules.MinBodyLength = n }
}

// NewStrategy creates a review strategy over wf.
func NewStrategy(wf *Workflow, opts ...Option) *Strategy {
	s := &Strategy{
		wf: wf,
		rules: publish.Rules{
			MinRole:       content.RoleAuthor,
			Statuses:      []content.Status{content.StatusDraft},
			MinBodyLength: publish.DefaultMinBodyLength,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named(publish.NameReview)
	if s.sink == nil {
		s.sink = events.Discard
	}
	return s
}

func (s *Strategy) Name() string  { return publish.NameReview }
func (s *Strategy) Priority() int { return 70 }

// Workflow exposes the underlying workflow.
func (s *Strategy) Workflow() *Workflow { return s.wf }

// categoryOf prefers the request's category property over the content's own.
func categoryOf(item content.Item, req *publish.Request) string {
	if c, ok := req.Property(publish.PropCategory); ok && c != "" {
		return c
	}
	return item.Category()
}

// Validate checks the base rules, that no case is active, and that enough
// reviewers can be assigned.
func (s *Strategy) Validate(_ context.Context, item content.Item, req *publish.Request) error {
	const op = "review.validate"
	if err := s.rules.Check(op, item, req); err != nil {
		return publish.Wrap(err, publish.KindValidation, op, "", s.Name())
	}
	if s.wf.HasActive(item.ID()) {
		return publish.Validation(op, item.ID(), "This content is already under review.", ErrCaseActive).
			WithStrategy(s.Name())
	}
	if err := s.wf.CanAssign(categoryOf(item, req), req.Actor().ID); err != nil {
		return publish.Validation(op, item.ID(), "No reviewers are available for this content category.", err).
			WithStrategy(s.Name())
	}
	return nil
}

// Publish opens a review case and moves the content to Review. Content that
// is already published is left untouched.
func (s *Strategy) Publish(ctx context.Context, item content.Item, req *publish.Request) error {
	const op = "review.submit"
	if err := publish.RequireArgs(op, item, req); err != nil {
		return publish.Wrap(err, publish.KindValidation, op, "", s.Name())
	}
	actor := req.Actor()
	if item.Status() == content.StatusPublished {
		s.logger.Info(ctx, "content already published, review not opened",
			zap.String("content.id", item.ID()),
			zap.String("actor", actor.ID))
		return nil
	}
	c, err := s.wf.Submit(ctx, item, actor, categoryOf(item, req), req.Comment)
	if err != nil {
		return s.shield(op, item.ID(), err)
	}

	events.Emit(ctx, s.sink, s.logger, events.New(events.TypeSubmittedForReview, item.ID(),
		events.MetaStrategy, s.Name(),
		events.MetaActor, actor.ID,
		events.MetaReviewer, strings.Join(c.Reviewers, ","),
		events.MetaRequired, strconv.Itoa(c.RequiredApprovals)))
	return nil
}

// ProcessReviewDecision records reviewer's decision. Reaching the approval
// threshold publishes the content exactly once.
func (s *Strategy) ProcessReviewDecision(ctx context.Context, contentID string, reviewer content.Actor, d Decision, comment string) (*Case, error) {
	const op = "review.decide"
	out, err := s.wf.Decide(ctx, contentID, reviewer.ID, d, comment, s.approve(reviewer))
	if err != nil && out == nil {
		return nil, s.shield(op, contentID, err)
	}

	meta := []string{
		events.MetaStrategy, s.Name(),
		events.MetaReviewer, reviewer.ID,
		events.MetaDecision, string(d),
		events.MetaApprovals, strconv.Itoa(out.Case.Approvals()),
		events.MetaRequired, strconv.Itoa(out.Case.RequiredApprovals),
	}
	if comment != "" {
		meta = append(meta, events.MetaComment, comment)
	}

	switch out.Transition {
	case TransitionRejected:
		events.Emit(ctx, s.sink, s.logger, events.New(events.TypeRejected, contentID, meta...))
	case TransitionPublished:
		events.Emit(ctx, s.sink, s.logger, events.New(events.TypePublished, contentID, meta...))
	case TransitionPublishFailed:
		s.logger.Error(ctx, "approved content failed to publish",
			zap.String("content.id", contentID),
			zap.Error(err))
		events.Emit(ctx, s.sink, s.logger, events.New(events.TypeError, contentID,
			append(meta, events.MetaError, "publish after approval failed")...))
		return out.Case, publish.Execution(op, contentID,
			"The content was approved but could not be published. Please resubmit.", err).WithStrategy(s.Name())
	default:
		events.Emit(ctx, s.sink, s.logger, events.New(events.TypeReviewed, contentID, meta...))
	}
	return out.Case, nil
}

func (s *Strategy) approve(reviewer content.Actor) ApproveFunc {
	return func(_ context.Context, _ *Case, item content.Item) error {
		_, err := publish.MarkPublished(item, reviewer.ID, s.clock.Now())
		return err
	}
}

// Withdraw ends the active case for contentID.
func (s *Strategy) Withdraw(ctx context.Context, contentID string, actor content.Actor) (*Case, error) {
	const op = "review.withdraw"
	c, err := s.wf.Withdraw(ctx, contentID, actor)
	if err != nil {
		return nil, s.shield(op, contentID, err)
	}
	events.Emit(ctx, s.sink, s.logger, events.New(events.TypeWithdrawn, contentID,
		events.MetaStrategy, s.Name(),
		events.MetaActor, actor.ID))
	return c, nil
}

var userMessages = []struct {
	err error
	msg string
}{
	{ErrCaseNotFound, "There is no review in progress for this content."},
	{ErrCaseActive, "This content is already under review."},
	{ErrCaseClosed, "This review is closed."},
	{ErrReviewerNotAssigned, "You are not a reviewer for this content."},
	{ErrSelfReview, "You cannot review your own content."},
	{ErrInvalidDecision, "Unknown review decision."},
	{ErrNoReviewers, "No reviewers are available for this content category."},
	{ErrNotPermitted, "You are not allowed to withdraw this review."},
	{ErrUnknownCategory, "Unknown content category."},
}

// shield maps workflow errors to *publish.Error. Known causes are
// validation failures; anything else is an execution failure.
func (s *Strategy) shield(op, contentID string, err error) error {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return publish.Validation(op, contentID, m.msg, err).WithStrategy(s.Name())
		}
	}
	s.logger.Error(context.Background(), "review operation failed",
		zap.String("op", op),
		zap.String("content.id", contentID),
		zap.Error(err))
	return publish.Execution(op, contentID, "", err).WithStrategy(s.Name())
}

var _ publish.Strategy = (*Strategy)(nil)
