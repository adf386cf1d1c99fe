package content

import (
	"fmt"
	"sync"
	"time"
)

// Article is the default Item implementation. It is safe for concurrent use.
type Article struct {
	mu sync.RWMutex

	id       string
	title    string
	body     string
	category string
	authorID string

	status       Status
	publishedAt  *time.Time
	modifiedAt   time.Time
	modifiedBy   string
	scheduledFor *time.Time
	metadata     map[string]string
}

// NewArticle creates a draft article.
func NewArticle(id, title, body string) *Article {
	return &Article{
		id:         id,
		title:      title,
		body:       body,
		status:     StatusDraft,
		modifiedAt: time.Now(),
		metadata:   make(map[string]string),
	}
}

// WithCategory sets the category and returns the article for chaining.
func (a *Article) WithCategory(category string) *Article {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.category = category
	return a
}

// WithAuthor sets the author id and returns the article for chaining.
func (a *Article) WithAuthor(authorID string) *Article {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authorID = authorID
	a.modifiedBy = authorID
	return a
}

// WithStatus forces the initial status without a transition check.
// Intended for loading existing content.
func (a *Article) WithStatus(status Status) *Article {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
	return a
}

func (a *Article) ID() string { return a.id }

func (a *Article) Title() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.title
}

func (a *Article) Body() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.body
}

func (a *Article) Category() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.category
}

// AuthorID returns the id of the actor who created the article.
func (a *Article) AuthorID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.authorID
}

func (a *Article) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// SetStatus applies a validated transition.
func (a *Article) SetStatus(target Status) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.status, target)
	}
	a.status = target
	return nil
}

func (a *Article) PublishedAt() (time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.publishedAt == nil {
		return time.Time{}, false
	}
	return *a.publishedAt, true
}

func (a *Article) SetPublishedAt(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.publishedAt = &at
}

func (a *Article) LastModified() (time.Time, string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.modifiedAt, a.modifiedBy
}

func (a *Article) Touch(by string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modifiedAt = at
	a.modifiedBy = by
}

func (a *Article) ScheduledFor() (time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.scheduledFor == nil {
		return time.Time{}, false
	}
	return *a.scheduledFor, true
}

func (a *Article) MarkScheduled(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scheduledFor = &at
}

func (a *Article) ClearSchedule() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scheduledFor = nil
}

func (a *Article) Metadata(key string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.metadata[key]
	return v, ok
}

func (a *Article) SetMetadata(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.metadata == nil {
		a.metadata = make(map[string]string)
	}
	a.metadata[key] = value
}

// Snapshot is a serializable view of an item.
type Snapshot struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Category     string            `json:"category,omitempty"`
	Status       Status            `json:"status"`
	PublishedAt  *time.Time        `json:"published_at,omitempty"`
	ModifiedAt   time.Time         `json:"modified_at"`
	ModifiedBy   string            `json:"modified_by,omitempty"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Snapshot returns a consistent copy of the article state.
func (a *Article) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Snapshot{
		ID:         a.id,
		Title:      a.title,
		Category:   a.category,
		Status:     a.status,
		ModifiedAt: a.modifiedAt,
		ModifiedBy: a.modifiedBy,
		Metadata:   make(map[string]string, len(a.metadata)),
	}
	if a.publishedAt != nil {
		t := *a.publishedAt
		s.PublishedAt = &t
	}
	if a.scheduledFor != nil {
		t := *a.scheduledFor
		s.ScheduledFor = &t
	}
	for k, v := range a.metadata {
		s.Metadata[k] = v
	}
	return s
}

var _ Item = (*Article)(nil)
