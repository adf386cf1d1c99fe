package review

import (
	"sort"
	"sync"

	"github.com/fyrsmithlabs/contentd/internal/content"
)

// Reviewer is a member of the reviewer pool.
type Reviewer struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Role content.Role `json:"role"`
}

// Assigner picks reviewers for new cases. Implementations must be safe for
// concurrent use.
type Assigner interface {
	// Eligible counts reviewers that could be assigned under policy.
	Eligible(policy CategoryConfig, submitterID string) int
	// Assign returns up to limit reviewer ids, never including the submitter.
	Assign(policy CategoryConfig, submitterID string, limit int) []string
	// Release returns reviewers to the pool once a case ends.
	Release(reviewerIDs []string)
}

// PoolAssigner assigns the least-loaded eligible reviewers from a fixed
// pool. Ties break on reviewer id.
type PoolAssigner struct {
	mu        sync.Mutex
	reviewers []Reviewer
	load      map[string]int
}

// NewPoolAssigner creates an assigner over reviewers.
func NewPoolAssigner(reviewers ...Reviewer) *PoolAssigner {
	return &PoolAssigner{
		reviewers: append([]Reviewer(nil), reviewers...),
		load:      make(map[string]int, len(reviewers)),
	}
}

// SetReviewers replaces the pool. Outstanding load is kept for reviewers
// still present.
func (p *PoolAssigner) SetReviewers(reviewers ...Reviewer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reviewers = append([]Reviewer(nil), reviewers...)
}

func (p *PoolAssigner) eligible(policy CategoryConfig, submitterID string) []Reviewer {
	var out []Reviewer
	for _, r := range p.reviewers {
		if r.ID == submitterID || !policy.Allows(r.Role) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Eligible implements Assigner.
func (p *PoolAssigner) Eligible(policy CategoryConfig, submitterID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.eligible(policy, submitterID))
}

// Assign implements Assigner.
func (p *PoolAssigner) Assign(policy CategoryConfig, submitterID string, limit int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := p.eligible(policy, submitterID)
	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := p.load[candidates[i].ID], p.load[candidates[j].ID]
		if li != lj {
			return li < lj
		}
		return candidates[i].ID < candidates[j].ID
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	ids := make([]string, len(candidates))
	for i, r := range candidates {
		ids[i] = r.ID
		p.load[r.ID]++
	}
	return ids
}

// Release implements Assigner.
func (p *PoolAssigner) Release(reviewerIDs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range reviewerIDs {
		if p.load[id] > 0 {
			p.load[id]--
		}
	}
}

// Load returns the number of active assignments for reviewerID.
func (p *PoolAssigner) Load(reviewerID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load[reviewerID]
}

// Reviewer looks up a pool member.
func (p *PoolAssigner) Reviewer(id string) (Reviewer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.reviewers {
		if r.ID == id {
			return r, true
		}
	}
	return Reviewer{}, false
}

var _ Assigner = (*PoolAssigner)(nil)
