package content

import (
	"context"
	"sort"
	"sync"
)

// Repository looks up and stores content items.
type Repository interface {
	// Save stores or replaces an item.
	Save(ctx context.Context, item Item) error
	// Get retrieves an item by ID.
	Get(ctx context.Context, id string) (Item, error)
	// List returns all items ordered by ID.
	List(ctx context.Context) ([]Item, error)
	// Delete removes an item.
	Delete(ctx context.Context, id string) error
}

// MemoryRepository is an in-memory implementation of Repository.
// It is thread-safe and suitable for single-instance deployments.
// Items are stored by reference; they synchronize their own state.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]Item
	// Index for category lookups
	byCategory map[string]map[string]struct{}
}

// NewMemoryRepository creates a new in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:      make(map[string]Item),
		byCategory: make(map[string]map[string]struct{}),
	}
}

// Save stores or replaces an item.
func (r *MemoryRepository) Save(ctx context.Context, item Item) error {
	if item == nil || item.ID() == "" {
		return ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.items[item.ID()]; ok {
		r.unindex(prev)
	}
	r.items[item.ID()] = item

	cat := item.Category()
	if r.byCategory[cat] == nil {
		r.byCategory[cat] = make(map[string]struct{})
	}
	r.byCategory[cat][item.ID()] = struct{}{}
	return nil
}

// Get retrieves an item by ID.
func (r *MemoryRepository) Get(ctx context.Context, id string) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return item, nil
}

// List returns all items ordered by ID.
func (r *MemoryRepository) List(ctx context.Context) ([]Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Item, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// ListByCategory returns items in a category ordered by ID.
func (r *MemoryRepository) ListByCategory(ctx context.Context, category string) ([]Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byCategory[category]
	out := make([]Item, 0, len(ids))
	for id := range ids {
		out = append(out, r.items[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// Delete removes an item.
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	r.unindex(item)
	delete(r.items, id)
	return nil
}

// unindex removes an item from the category index. Caller holds r.mu.
func (r *MemoryRepository) unindex(item Item) {
	cat := item.Category()
	if ids, ok := r.byCategory[cat]; ok {
		delete(ids, item.ID())
		if len(ids) == 0 {
			delete(r.byCategory, cat)
		}
	}
}

var _ Repository = (*MemoryRepository)(nil)
