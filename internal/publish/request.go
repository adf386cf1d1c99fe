package publish

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/contentd/internal/content"
)

// Priority orders publish requests. Higher values are more urgent.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityEmergency
)

var priorityNames = [...]string{"background", "low", "normal", "high", "emergency"}

func (p Priority) String() string {
	if p >= 0 && int(p) < len(priorityNames) {
		return priorityNames[p]
	}
	return "priority(" + strconv.Itoa(int(p)) + ")"
}

// ParsePriority parses a priority name; empty means normal.
func ParsePriority(s string) (Priority, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityNormal, true
	}
	for i, n := range priorityNames {
		if n == s {
			return Priority(i), true
		}
	}
	return PriorityNormal, false
}

// Well-known request properties.
const (
	// PropBatchItems holds a comma-separated list of additional content ids.
	PropBatchItems = "batch_items"
	// PropAutoPublish enables the auto strategy when "true".
	PropAutoPublish = "auto_publish_enabled"
	// PropCategory overrides the content category for review routing.
	PropCategory = "category"
)

// Request describes one publish attempt: who, when, where, and how.
// The actor and creation time are fixed at construction. The remaining
// fields may be adjusted by the caller before the request is handed to a
// strategy; strategies treat the request as read-only.
type Request struct {
	actor     content.Actor
	createdAt time.Time

	ScheduledFor *time.Time
	Environment  string
	Channel      string
	Priority     Priority
	Force        bool
	Notify       bool
	Comment      string

	mu         sync.RWMutex
	properties map[string]string
	tags       map[string]struct{}
}

// RequestOption configures a Request.
type RequestOption func(*Request)

// NewRequest builds a request for actor.
func NewRequest(actor content.Actor, opts ...RequestOption) *Request {
	r := &Request{
		actor:       actor,
		createdAt:   time.Now(),
		Environment: "production",
		Channel:     "web",
		Priority:    PriorityNormal,
		Notify:      true,
		properties:  make(map[string]string),
		tags:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithScheduledFor defers publication until t.
func WithScheduledFor(t time.Time) RequestOption {
	return func(r *Request) { r.ScheduledFor = &t }
}

// WithPriority sets the request priority.
func WithPriority(p Priority) RequestOption {
	return func(r *Request) { r.Priority = p }
}

// WithForce bypasses soft quality checks.
func WithForce(force bool) RequestOption {
	return func(r *Request) { r.Force = force }
}

// WithNotify toggles subscriber notification.
func WithNotify(notify bool) RequestOption {
	return func(r *Request) { r.Notify = notify }
}

// WithEnvironment sets the target environment.
func WithEnvironment(env string) RequestOption {
	return func(r *Request) { r.Environment = env }
}

// WithChannel sets the target channel.
func WithChannel(ch string) RequestOption {
	return func(r *Request) { r.Channel = ch }
}

// WithComment attaches a free-form comment.
func WithComment(c string) RequestOption {
	return func(r *Request) { r.Comment = c }
}

// WithProperty sets a strategy-specific property.
func WithProperty(key, value string) RequestOption {
	return func(r *Request) { r.properties[key] = value }
}

// WithTags adds tags.
func WithTags(tags ...string) RequestOption {
	return func(r *Request) {
		for _, t := range tags {
			r.tags[t] = struct{}{}
		}
	}
}

// WithCreatedAt overrides the creation timestamp.
func WithCreatedAt(t time.Time) RequestOption {
	return func(r *Request) { r.createdAt = t }
}

// Actor returns the requesting actor.
func (r *Request) Actor() content.Actor { return r.actor }

// CreatedAt returns when the request was built.
func (r *Request) CreatedAt() time.Time { return r.createdAt }

// IsScheduledAt reports whether the request targets a time after now.
func (r *Request) IsScheduledAt(now time.Time) bool {
	return r.ScheduledFor != nil && r.ScheduledFor.After(now)
}

// IsScheduled reports whether the request targets a future time.
func (r *Request) IsScheduled() bool {
	return r.IsScheduledAt(time.Now())
}

// IsImmediate is the complement of IsScheduled.
func (r *Request) IsImmediate() bool {
	return !r.IsScheduled()
}

// Property returns a property value. Strategies must not assume it is set.
func (r *Request) Property(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.properties[key]
	return v, ok
}

// SetProperty sets a property value.
func (r *Request) SetProperty(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.properties[key] = value
}

// BoolProperty parses a property as a bool; missing or malformed is false.
func (r *Request) BoolProperty(key string) bool {
	v, ok := r.Property(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// ListProperty splits a comma-separated property, dropping empty entries.
func (r *Request) ListProperty(key string) []string {
	v, ok := r.Property(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Properties returns a copy of the property bag.
func (r *Request) Properties() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.properties))
	for k, v := range r.properties {
		out[k] = v
	}
	return out
}

// AddTag adds a tag.
func (r *Request) AddTag(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[tag] = struct{}{}
}

// HasTag reports whether tag is set.
func (r *Request) HasTag(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tags[tag]
	return ok
}

// Tags returns the tags in sorted order.
func (r *Request) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tags))
	for t := range r.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
