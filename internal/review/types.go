// Package review implements multi-reviewer approval for publishing.
//
// A Case moves PendingReview -> InReview -> {Approved -> Published, Rejected}.
// Withdrawn is reachable from PendingReview and InReview. Any rejection wins
// over approvals. Decisions for one case are serialized by a per-case lock;
// unrelated cases never contend.
package review

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/contentd/internal/content"
)

// CaseStatus is a review case's position in the state machine.
type CaseStatus string

const (
	StatusPendingReview CaseStatus = "pending_review"
	StatusInReview      CaseStatus = "in_review"
	StatusApproved      CaseStatus = "approved"
	StatusRejected      CaseStatus = "rejected"
	StatusPublished     CaseStatus = "published"
	StatusWithdrawn     CaseStatus = "withdrawn"
)

// ValidTransitions defines allowed case status changes.
var ValidTransitions = map[CaseStatus][]CaseStatus{
	StatusPendingReview: {StatusInReview, StatusApproved, StatusRejected, StatusWithdrawn},
	StatusInReview:      {StatusInReview, StatusApproved, StatusRejected, StatusWithdrawn},
	StatusApproved:      {StatusPublished},
	StatusRejected:      {},
	StatusPublished:     {},
	StatusWithdrawn:     {},
}

// CanTransitionTo reports whether s may move to target.
func (s CaseStatus) CanTransitionTo(target CaseStatus) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsActive reports whether the case still accepts decisions.
func (s CaseStatus) IsActive() bool {
	return s == StatusPendingReview || s == StatusInReview
}

// IsTerminal reports whether the case can no longer change.
func (s CaseStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusRejected || s == StatusWithdrawn
}

// Decision is one reviewer's verdict.
type Decision string

const (
	DecisionPending       Decision = "pending"
	DecisionApproved      Decision = "approved"
	DecisionRejected      Decision = "rejected"
	DecisionNeedsRevision Decision = "needs_revision"
)

// ParseDecision parses a decision name. Pending is not a valid input.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionApproved, DecisionRejected, DecisionNeedsRevision:
		return d, nil
	case "approve":
		return DecisionApproved, nil
	case "reject":
		return DecisionRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
	}
}

// Sentinel errors.
var (
	ErrCaseNotFound        = errors.New("no review case for content")
	ErrCaseActive          = errors.New("content already has an active review case")
	ErrCaseClosed          = errors.New("review case no longer accepts changes")
	ErrReviewerNotAssigned = errors.New("reviewer is not assigned to this case")
	ErrSelfReview          = errors.New("submitter cannot review their own content")
	ErrInvalidDecision     = errors.New("invalid review decision")
	ErrNoReviewers         = errors.New("not enough eligible reviewers")
	ErrNotPermitted        = errors.New("actor may not perform this review action")
	ErrUnknownCategory     = errors.New("unknown review category")
)

// Comment is one entry in a case's comment log.
type Comment struct {
	AuthorID string    `json:"author_id"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Case is the review state for one content item.
type Case struct {
	ID                string              `json:"id"`
	ContentID         string              `json:"content_id"`
	Category          string              `json:"category"`
	Submitter         content.Actor       `json:"submitter"`
	SubmittedAt       time.Time           `json:"submitted_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	Reviewers         []string            `json:"reviewers"`
	Decisions         map[string]Decision `json:"decisions"`
	Comments          []Comment           `json:"comments,omitempty"`
	RequiredApprovals int                 `json:"required_approvals"`
	Status            CaseStatus          `json:"status"`
	TimeoutDays       int                 `json:"timeout_days,omitempty"`
}

// Approvals counts approved decisions.
func (c *Case) Approvals() int {
	n := 0
	for _, d := range c.Decisions {
		if d == DecisionApproved {
			n++
		}
	}
	return n
}

// HasRejection reports whether any reviewer rejected.
func (c *Case) HasRejection() bool {
	for _, d := range c.Decisions {
		if d == DecisionRejected {
			return true
		}
	}
	return false
}

// IsAssigned reports whether reviewerID is on the case.
func (c *Case) IsAssigned(reviewerID string) bool {
	for _, r := range c.Reviewers {
		if r == reviewerID {
			return true
		}
	}
	return false
}

// Deadline returns when the case becomes overdue; ok is false without a
// timeout.
func (c *Case) Deadline() (time.Time, bool) {
	if c.TimeoutDays <= 0 {
		return time.Time{}, false
	}
	return c.SubmittedAt.Add(time.Duration(c.TimeoutDays) * 24 * time.Hour), true
}

// Clone returns a deep copy.
func (c *Case) Clone() *Case {
	out := *c
	out.Reviewers = append([]string(nil), c.Reviewers...)
	out.Comments = append([]Comment(nil), c.Comments...)
	out.Decisions = make(map[string]Decision, len(c.Decisions))
	for k, v := range c.Decisions {
		out.Decisions[k] = v
	}
	return &out
}

// evaluate applies the transition rule: rejection first, then the approval
// threshold, otherwise still in review.
func (c *Case) evaluate() CaseStatus {
	switch {
	case c.HasRejection():
		return StatusRejected
	case c.Approvals() >= c.RequiredApprovals:
		return StatusApproved
	default:
		return StatusInReview
	}
}
