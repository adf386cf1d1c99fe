// Package publish defines the strategy contract, the publish request, the
// shielded error type, and the synchronous strategies (immediate, auto,
// batch). Deferred and review-based strategies live in the scheduling and
// review packages.
package publish

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/contentd/internal/content"
)

// Strategy names registered by the daemon.
const (
	NameImmediate = "immediate"
	NameScheduled = "scheduled"
	NameReview    = "review"
	NameAuto      = "auto"
	NameBatch     = "batch"
)

// Strategy is one interchangeable publishing algorithm.
//
// Validate is a pure precondition check: it must not mutate item or req. It
// returns nil when the strategy can run, a KindValidation *Error for
// ordinary invalid input, and a KindValidation *Error wrapping
// ErrNilArgument when item or req is nil.
//
// Publish performs the algorithm. Re-invoking it for content that is already
// published must not fail hard; strategies either no-op or signal a
// republish. All returned errors are *Error.
type Strategy interface {
	Name() string
	// Priority ranks the strategy, 1 (lowest) to 100.
	Priority() int
	Validate(ctx context.Context, item content.Item, req *Request) error
	Publish(ctx context.Context, item content.Item, req *Request) error
}

// Capabilities lists optional strategy features. The zero value means none.
type Capabilities struct {
	SupportsBatch    bool `json:"supports_batch"`
	SupportsRollback bool `json:"supports_rollback"`
}

// CapabilityReporter is implemented by strategies with optional features.
type CapabilityReporter interface {
	Capabilities() Capabilities
}

// CapabilitiesOf returns s's capabilities, or the zero value.
func CapabilitiesOf(s Strategy) Capabilities {
	if r, ok := s.(CapabilityReporter); ok {
		return r.Capabilities()
	}
	return Capabilities{}
}

// DurationEstimator is implemented by strategies that can predict how long
// publication will take.
type DurationEstimator interface {
	EstimateDuration(item content.Item, req *Request) (time.Duration, bool)
}

// EstimateDuration asks s for an estimate; ok is false when unknown.
func EstimateDuration(s Strategy, item content.Item, req *Request) (time.Duration, bool) {
	if e, ok := s.(DurationEstimator); ok && item != nil && req != nil {
		return e.EstimateDuration(item, req)
	}
	return 0, false
}

// Rollbacker is implemented by strategies that can unpublish.
type Rollbacker interface {
	Rollback(ctx context.Context, item content.Item, req *Request) error
}

// Info is a serializable description of a strategy.
type Info struct {
	Name         string       `json:"name"`
	Priority     int          `json:"priority"`
	Capabilities Capabilities `json:"capabilities"`
}

// Describe returns s's Info.
func Describe(s Strategy) Info {
	return Info{Name: s.Name(), Priority: s.Priority(), Capabilities: CapabilitiesOf(s)}
}

// Clock returns the current time. Strategies take one so tests can pin now.
type Clock func() time.Time

// Now returns the clock's current time, or time.Now for a nil clock.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
