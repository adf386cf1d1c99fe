package orchestrator

import (
	"sort"
	"sync"
	"time"
)

// DefaultPerformanceWindow is the number of recent samples kept per strategy.
const DefaultPerformanceWindow = 100

// Performance summarizes a strategy's recent attempts.
type Performance struct {
	Strategy     string        `json:"strategy"`
	Samples      int           `json:"samples"`
	SuccessRate  float64       `json:"success_rate"`
	AvgDuration  time.Duration `json:"avg_duration"`
	P95Duration  time.Duration `json:"p95_duration"`
	LastDuration time.Duration `json:"last_duration"`
	LastSuccess  bool          `json:"last_success"`
}

type sample struct {
	d  time.Duration
	ok bool
}

type window struct {
	mu      sync.Mutex
	samples []sample
	next    int
	full    bool
}

// PerformanceTracker keeps a sliding window of attempt outcomes per strategy.
type PerformanceTracker struct {
	size    int
	windows sync.Map // name -> *window
}

// NewPerformanceTracker creates a tracker keeping size samples per strategy.
func NewPerformanceTracker(size int) *PerformanceTracker {
	if size < 1 {
		size = DefaultPerformanceWindow
	}
	return &PerformanceTracker{size: size}
}

// Record adds one attempt outcome.
func (p *PerformanceTracker) Record(name string, d time.Duration, ok bool) {
	v, loaded := p.windows.Load(name)
	if !loaded {
		v, _ = p.windows.LoadOrStore(name, &window{samples: make([]sample, p.size)})
	}
	w := v.(*window)
	w.mu.Lock()
	w.samples[w.next] = sample{d: d, ok: ok}
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
	w.mu.Unlock()
}

// Get summarizes name's window. Samples is zero for unknown strategies.
func (p *PerformanceTracker) Get(name string) Performance {
	v, ok := p.windows.Load(name)
	if !ok {
		return Performance{Strategy: name}
	}
	w := v.(*window)
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	recent := make([]sample, n)
	copy(recent, w.samples[:n])
	last := w.samples[(w.next-1+len(w.samples))%len(w.samples)]
	w.mu.Unlock()

	perf := Performance{Strategy: name, Samples: n}
	if n == 0 {
		return perf
	}
	perf.LastDuration, perf.LastSuccess = last.d, last.ok

	durations := make([]time.Duration, n)
	var total time.Duration
	var successes int
	for i, s := range recent {
		durations[i] = s.d
		total += s.d
		if s.ok {
			successes++
		}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	perf.AvgDuration = total / time.Duration(n)
	perf.P95Duration = durations[(n*95+99)/100-1]
	perf.SuccessRate = 100 * float64(successes) / float64(n)
	return perf
}

// Snapshot summarizes every tracked strategy.
func (p *PerformanceTracker) Snapshot() map[string]Performance {
	out := make(map[string]Performance)
	p.windows.Range(func(k, _ any) bool {
		name := k.(string)
		out[name] = p.Get(name)
		return true
	})
	return out
}
