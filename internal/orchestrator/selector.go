package orchestrator

import (
	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/publish"
)

// BatchSelectionThreshold is the batch_items count above which the default
// selector picks the batch strategy.
const BatchSelectionThreshold = 10

// Selector picks a strategy name for a publish request. available lists the
// registered names; history carries each strategy's recent performance.
// Returning "" or an unregistered name makes the orchestrator use its
// default strategy.
type Selector interface {
	Select(item content.Item, req *publish.Request, available []string, history map[string]Performance) string
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(item content.Item, req *publish.Request, available []string, history map[string]Performance) string

// Select calls f.
func (f SelectorFunc) Select(item content.Item, req *publish.Request, available []string, history map[string]Performance) string {
	return f(item, req, available, history)
}

// DefaultSelector applies fixed rules in order and ignores history.
type DefaultSelector struct {
	Clock publish.Clock
}

// Select implements Selector.
func (s DefaultSelector) Select(_ content.Item, req *publish.Request, _ []string, _ map[string]Performance) string {
	if req == nil {
		return ""
	}
	actor := req.Actor()
	switch {
	case req.IsScheduledAt(s.Clock.Now()):
		return publish.NameScheduled
	case len(req.ListProperty(publish.PropBatchItems)) > BatchSelectionThreshold:
		return publish.NameBatch
	case req.BoolProperty(publish.PropAutoPublish):
		return publish.NameAuto
	case !actor.Role.AtLeast(content.RoleEditor):
		return publish.NameReview
	case req.Priority == publish.PriorityEmergency:
		return publish.NameImmediate
	case req.Priority == publish.PriorityHigh && actor.Role.AtLeast(content.RoleEditor):
		return publish.NameImmediate
	default:
		return publish.NameImmediate
	}
}
