package content

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a content item.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusReview    Status = "review"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// ValidTransitions defines allowed status transitions.
// Self-transitions are not listed; Published → Published is a republish and
// never goes through SetStatus.
var ValidTransitions = map[Status][]Status{
	StatusDraft:     {StatusReview, StatusPublished, StatusArchived},
	StatusReview:    {StatusDraft, StatusPublished, StatusArchived},
	StatusPublished: {StatusDraft, StatusArchived},
	StatusArchived:  {StatusDraft},
}

// CanTransitionTo checks if a transition from current status to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	allowed, ok := ValidTransitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// In reports whether s is one of the given statuses.
func (s Status) In(statuses ...Status) bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Errors returned by content types.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("content not found")
	ErrEmptyID           = errors.New("content id is required")
	ErrUnknownRole       = errors.New("unknown role")
)

// Role is an ordered privilege level. Higher values are more privileged.
type Role int

const (
	RoleGuest Role = iota
	RoleAuthor
	RoleEditor
	RolePublisher
	RoleAdministrator
)

var roleNames = map[Role]string{
	RoleGuest:         "guest",
	RoleAuthor:        "author",
	RoleEditor:        "editor",
	RolePublisher:     "publisher",
	RoleAdministrator: "administrator",
}

// String returns the lowercase role name.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// AtLeast reports whether r is at least as privileged as min.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// ParseRole parses a role name (case-insensitive). "admin" is accepted as an
// alias for administrator.
func ParseRole(name string) (Role, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "admin" {
		return RoleAdministrator, nil
	}
	for r, rn := range roleNames {
		if rn == n {
			return r, nil
		}
	}
	return RoleGuest, fmt.Errorf("%w: %q", ErrUnknownRole, name)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Actor identifies who performs an operation.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

// IsZero reports whether the actor carries no identity.
func (a Actor) IsZero() bool {
	return a.ID == ""
}

// Item is the contract the publishing engine needs from a content item.
// Implementations must be safe for concurrent use: scheduled publications
// mutate items from worker goroutines.
type Item interface {
	ID() string
	Title() string
	Body() string
	Category() string

	Status() Status
	// SetStatus applies a transition, returning ErrInvalidTransition when
	// the item's lifecycle does not allow it.
	SetStatus(target Status) error

	PublishedAt() (time.Time, bool)
	SetPublishedAt(at time.Time)

	LastModified() (time.Time, string)
	Touch(by string, at time.Time)

	// ScheduledFor returns the pending scheduled publication time, if any.
	ScheduledFor() (time.Time, bool)
	MarkScheduled(at time.Time)
	ClearSchedule()

	Metadata(key string) (string, bool)
	SetMetadata(key, value string)
}
