package orchestrator

import (
	"sort"
	"sync"
	"time"
)

// UsageStats are monotonically increasing counters for one strategy.
type UsageStats struct {
	Strategy      string        `json:"strategy"`
	UsageCount    int64         `json:"usage_count"`
	SuccessCount  int64         `json:"success_count"`
	FailureCount  int64         `json:"failure_count"`
	TotalDuration time.Duration `json:"total_duration"`
	FirstUsed     time.Time     `json:"first_used"`
	LastUsed      time.Time     `json:"last_used"`
}

// AverageDuration is TotalDuration divided by UsageCount.
func (s UsageStats) AverageDuration() time.Duration {
	if s.UsageCount == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.UsageCount)
}

// SuccessRate is the percentage of successful invocations, 0..100.
func (s UsageStats) SuccessRate() float64 {
	if s.UsageCount == 0 {
		return 0
	}
	return 100 * float64(s.SuccessCount) / float64(s.UsageCount)
}

type usageCounter struct {
	mu    sync.Mutex
	stats UsageStats
}

func (u *usageCounter) record(d time.Duration, ok bool, at time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	s := &u.stats
	s.UsageCount++
	if ok {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}
	s.TotalDuration += d
	if s.FirstUsed.IsZero() {
		s.FirstUsed = at
	}
	s.LastUsed = at
}

func (u *usageCounter) snapshot() UsageStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}

// usageTable holds one counter per strategy. Counters are created on first
// use and never removed, so stats survive unregistration.
type usageTable struct {
	m sync.Map // name -> *usageCounter
}

func (t *usageTable) counter(name string) *usageCounter {
	if c, ok := t.m.Load(name); ok {
		return c.(*usageCounter)
	}
	c, _ := t.m.LoadOrStore(name, &usageCounter{stats: UsageStats{Strategy: name}})
	return c.(*usageCounter)
}

func (t *usageTable) record(name string, d time.Duration, ok bool, at time.Time) {
	t.counter(name).record(d, ok, at)
}

func (t *usageTable) get(name string) (UsageStats, bool) {
	c, ok := t.m.Load(name)
	if !ok {
		return UsageStats{}, false
	}
	return c.(*usageCounter).snapshot(), true
}

func (t *usageTable) all() []UsageStats {
	var out []UsageStats
	t.m.Range(func(_, v any) bool {
		out = append(out, v.(*usageCounter).snapshot())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}
