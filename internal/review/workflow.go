package review

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/publish"
)

// Transition is what a decision did to its case.
type Transition string

const (
	TransitionReviewed      Transition = "reviewed"
	TransitionRejected      Transition = "rejected"
	TransitionPublished     Transition = "published"
	TransitionPublishFailed Transition = "publish_failed"
)

// Outcome reports the result of Decide.
type Outcome struct {
	Case       *Case
	Transition Transition
}

// ApproveFunc performs the publish side effect once a case is approved. It
// runs while the case is locked, so it executes at most once per case.
type ApproveFunc func(ctx context.Context, c *Case, item content.Item) error

type entry struct {
	mu   sync.Mutex
	c    *Case
	item content.Item
}

// Workflow tracks review cases keyed by content id. The table lock only
// guards membership; each case has its own lock for decisions.
type Workflow struct {
	mu    sync.RWMutex
	cases map[string]*entry

	cfgMu sync.RWMutex
	cfg   Config

	assigner Assigner
	logger   *logging.Logger
	clock    publish.Clock
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithAssigner sets the reviewer assigner. The default is an empty pool.
func WithAssigner(a Assigner) WorkflowOption {
	return func(w *Workflow) { w.assigner = a }
}

// WithWorkflowLogger sets the logger.
func WithWorkflowLogger(l *logging.Logger) WorkflowOption {
	return func(w *Workflow) { w.logger = l }
}

// WithWorkflowClock pins the time source.
func WithWorkflowClock(c publish.Clock) WorkflowOption {
	return func(w *Workflow) { w.clock = c }
}

// NewWorkflow creates a Workflow with the given policy.
func NewWorkflow(cfg Config, opts ...WorkflowOption) (*Workflow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &Workflow{cases: make(map[string]*entry), cfg: cfg}
	for _, opt := range opts {
		opt(w)
	}
	if w.assigner == nil {
		w.assigner = NewPoolAssigner()
	}
	w.logger = logging.OrNop(w.logger).Named("review")
	return w, nil
}

// Config returns the current policy.
func (w *Workflow) Config() Config {
	w.cfgMu.RLock()
	defer w.cfgMu.RUnlock()
	return w.cfg
}

// UpdateConfig swaps the policy. Existing cases keep the approval count they
// were created with.
func (w *Workflow) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	w.cfgMu.Lock()
	w.cfg = cfg
	w.cfgMu.Unlock()
	w.logger.Info(context.Background(), "review policy updated",
		zap.Int("categories", len(cfg.Categories)),
		zap.Int("max_reviewers", cfg.MaxReviewers))
	return nil
}

// Policy resolves category against the current config.
func (w *Workflow) Policy(category string) (string, CategoryConfig, error) {
	return w.Config().Category(category)
}

// CanAssign reports whether enough reviewers are eligible for category.
func (w *Workflow) CanAssign(category, submitterID string) error {
	_, policy, err := w.Policy(category)
	if err != nil {
		return err
	}
	if n := w.assigner.Eligible(policy, submitterID); n < policy.RequiredApprovals {
		return fmt.Errorf("%w: %d eligible, %d required", ErrNoReviewers, n, policy.RequiredApprovals)
	}
	return nil
}

// HasActive reports whether contentID has a case that still accepts
// decisions.
func (w *Workflow) HasActive(contentID string) bool {
	e := w.lookup(contentID)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.c.Status.IsActive()
}

func (w *Workflow) lookup(contentID string) *entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cases[contentID]
}

// removeIf deletes contentID only while it still maps to e.
func (w *Workflow) removeIf(contentID string, e *entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cases[contentID] == e {
		delete(w.cases, contentID)
	}
}

// Submit opens a case for item and moves it to Review. A terminal case for
// the same id is replaced; an active one is an error.
func (w *Workflow) Submit(ctx context.Context, item content.Item, submitter content.Actor, category, comment string) (*Case, error) {
	cfg := w.Config()
	name, policy, err := cfg.Category(category)
	if err != nil {
		return nil, err
	}

	limit := cfg.MaxReviewers
	if limit < policy.RequiredApprovals {
		limit = policy.RequiredApprovals
	}
	reviewers := w.assigner.Assign(policy, submitter.ID, limit)
	if len(reviewers) < policy.RequiredApprovals {
		w.assigner.Release(reviewers)
		return nil, fmt.Errorf("%w: %d assigned, %d required", ErrNoReviewers, len(reviewers), policy.RequiredApprovals)
	}

	now := w.clock.Now()
	c := &Case{
		ID:                uuid.NewString(),
		ContentID:         item.ID(),
		Category:          name,
		Submitter:         submitter,
		SubmittedAt:       now,
		UpdatedAt:         now,
		Reviewers:         reviewers,
		Decisions:         make(map[string]Decision, len(reviewers)),
		RequiredApprovals: policy.RequiredApprovals,
		Status:            StatusPendingReview,
		TimeoutDays:       policy.TimeoutDays,
	}
	for _, r := range reviewers {
		c.Decisions[r] = DecisionPending
	}
	if comment != "" {
		c.Comments = append(c.Comments, Comment{AuthorID: submitter.ID, Text: comment, At: now})
	}

	// The new entry is locked before it becomes visible so no decision can
	// observe it before the content status changes.
	e := &entry{c: c, item: item}
	e.mu.Lock()

	w.mu.Lock()
	if prev := w.cases[item.ID()]; prev != nil {
		prev.mu.Lock()
		active := prev.c.Status.IsActive()
		prev.mu.Unlock()
		if active {
			w.mu.Unlock()
			e.mu.Unlock()
			w.assigner.Release(reviewers)
			return nil, fmt.Errorf("%w: %s", ErrCaseActive, item.ID())
		}
	}
	w.cases[item.ID()] = e
	w.mu.Unlock()

	if err := item.SetStatus(content.StatusReview); err != nil {
		c.Status = StatusWithdrawn
		e.mu.Unlock()
		w.removeIf(item.ID(), e)
		w.assigner.Release(reviewers)
		return nil, err
	}
	item.Touch(submitter.ID, now)
	out := c.Clone()
	e.mu.Unlock()

	w.logger.Info(ctx, "review case opened",
		zap.String("content.id", item.ID()),
		zap.String("case.id", c.ID),
		zap.String("category", name),
		zap.Strings("reviewers", reviewers),
		zap.Int("required", policy.RequiredApprovals))
	return out, nil
}

// Decide records reviewerID's decision and applies the transition rule. When
// the case becomes approved, approve runs under the case lock; if it fails
// the case stays Approved and the error is returned with the outcome.
func (w *Workflow) Decide(ctx context.Context, contentID, reviewerID string, d Decision, comment string, approve ApproveFunc) (*Outcome, error) {
	if d != DecisionApproved && d != DecisionRejected && d != DecisionNeedsRevision {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, d)
	}
	e := w.lookup(contentID)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, contentID)
	}

	e.mu.Lock()
	c := e.c
	if !c.Status.IsActive() {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: status %s", ErrCaseClosed, c.Status)
	}
	if !c.IsAssigned(reviewerID) {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrReviewerNotAssigned, reviewerID)
	}
	if reviewerID == c.Submitter.ID {
		if _, policy, err := w.Policy(c.Category); err != nil || !policy.AllowSelfReview {
			e.mu.Unlock()
			return nil, ErrSelfReview
		}
	}

	now := w.clock.Now()
	c.Decisions[reviewerID] = d
	if comment != "" {
		c.Comments = append(c.Comments, Comment{AuthorID: reviewerID, Text: comment, At: now})
	}
	c.UpdatedAt = now

	out := &Outcome{}
	var (
		release bool
		remove  bool
		err     error
	)
	switch c.evaluate() {
	case StatusRejected:
		c.Status = StatusRejected
		out.Transition = TransitionRejected
		release = true
		if e.item.Status() == content.StatusReview {
			if serr := e.item.SetStatus(content.StatusDraft); serr != nil {
				w.logger.Warn(ctx, "returning rejected content to draft failed",
					zap.String("content.id", contentID),
					zap.Error(serr))
			} else {
				e.item.Touch(reviewerID, now)
			}
		}
	case StatusApproved:
		c.Status = StatusApproved
		if approve != nil {
			err = approve(ctx, c.Clone(), e.item)
		}
		if err != nil {
			out.Transition = TransitionPublishFailed
		} else {
			c.Status = StatusPublished
			out.Transition = TransitionPublished
			release, remove = true, true
		}
	default:
		c.Status = StatusInReview
		out.Transition = TransitionReviewed
	}
	out.Case = c.Clone()
	e.mu.Unlock()

	if release {
		w.assigner.Release(c.Reviewers)
	}
	if remove {
		w.removeIf(contentID, e)
	}

	w.logger.Info(ctx, "review decision recorded",
		zap.String("content.id", contentID),
		zap.String("reviewer", reviewerID),
		zap.String("decision", string(d)),
		zap.String("transition", string(out.Transition)),
		zap.Int("approvals", out.Case.Approvals()),
		zap.Int("required", out.Case.RequiredApprovals))
	return out, err
}

// Withdraw ends an active case and returns the content to Draft. Only the
// submitter or an Editor or above may withdraw.
func (w *Workflow) Withdraw(ctx context.Context, contentID string, actor content.Actor) (*Case, error) {
	e := w.lookup(contentID)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, contentID)
	}

	e.mu.Lock()
	c := e.c
	if !c.Status.IsActive() {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: status %s", ErrCaseClosed, c.Status)
	}
	if actor.ID != c.Submitter.ID && !actor.Role.AtLeast(content.RoleEditor) {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: withdraw by %s", ErrNotPermitted, actor.ID)
	}
	if err := e.item.SetStatus(content.StatusDraft); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	now := w.clock.Now()
	e.item.Touch(actor.ID, now)
	c.Status = StatusWithdrawn
	c.UpdatedAt = now
	out := c.Clone()
	e.mu.Unlock()

	w.assigner.Release(out.Reviewers)
	w.removeIf(contentID, e)
	w.logger.Info(ctx, "review case withdrawn",
		zap.String("content.id", contentID),
		zap.String("actor", actor.ID))
	return out, nil
}

// Resolve closes an active case whose content was published by another path.
// The content status is left alone. It reports whether a case was closed.
func (w *Workflow) Resolve(ctx context.Context, contentID, by string) bool {
	e := w.lookup(contentID)
	if e == nil {
		return false
	}

	e.mu.Lock()
	c := e.c
	if !c.Status.IsActive() {
		e.mu.Unlock()
		return false
	}
	c.Status = StatusPublished
	c.UpdatedAt = w.clock.Now()
	reviewers := append([]string(nil), c.Reviewers...)
	e.mu.Unlock()

	w.assigner.Release(reviewers)
	w.removeIf(contentID, e)
	w.logger.Info(ctx, "review case closed by external publication",
		zap.String("content.id", contentID),
		zap.String("actor", by))
	return true
}

// Get returns a copy of the case for contentID. Rejected cases and approved
// cases whose publish failed stay queryable until resubmission.
func (w *Workflow) Get(contentID string) (*Case, bool) {
	e := w.lookup(contentID)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.c.Clone(), true
}

func (w *Workflow) snapshot(keep func(*Case) bool) []*Case {
	w.mu.RLock()
	entries := make([]*entry, 0, len(w.cases))
	for _, e := range w.cases {
		entries = append(entries, e)
	}
	w.mu.RUnlock()

	var out []*Case
	for _, e := range entries {
		e.mu.Lock()
		if keep(e.c) {
			out = append(out, e.c.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

// Active lists cases still accepting decisions, oldest first.
func (w *Workflow) Active() []*Case {
	return w.snapshot(func(c *Case) bool { return c.Status.IsActive() })
}

// Overdue lists active cases past their category timeout at now. It does
// not change any case.
func (w *Workflow) Overdue(now time.Time) []*Case {
	return w.snapshot(func(c *Case) bool {
		deadline, ok := c.Deadline()
		return ok && c.Status.IsActive() && now.After(deadline)
	})
}
