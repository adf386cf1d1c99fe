package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/logging"
)

// Defaults for NewRegistry.
const (
	DefaultMaxPending = 1000
	DefaultWorkers    = 4
)

var (
	// ErrCapacity is returned when the pending-task limit is reached.
	ErrCapacity = errors.New("scheduler is at capacity")
	// ErrShutdown is returned after Shutdown.
	ErrShutdown = errors.New("scheduler is shut down")
	// ErrInvalidTask is returned for a spec without content id or run func.
	ErrInvalidTask = errors.New("task needs a content id and a run func")
)

// State is a task's lifecycle position.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CancelReason says why a pending task was cancelled.
type CancelReason int

const (
	// CancelRequested is an explicit Cancel call.
	CancelRequested CancelReason = iota + 1
	// CancelReplaced means a newer task for the same id superseded it.
	CancelReplaced
	// CancelShutdown means the registry shut down.
	CancelShutdown
)

func (r CancelReason) String() string {
	switch r {
	case CancelRequested:
		return "requested"
	case CancelReplaced:
		return "replaced"
	case CancelShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// TaskSpec describes one delayed task.
type TaskSpec struct {
	ContentID string
	FireAt    time.Time
	// Run executes on a worker. Its error is logged, never returned to the
	// caller of Schedule.
	Run func(ctx context.Context) error
	// OnCancel, if set, is called once when the task is cancelled before
	// it started. It is never called with the registry lock held.
	OnCancel func(reason CancelReason)
}

// Handle tracks one scheduled task.
type Handle struct {
	id         string
	spec       TaskSpec
	state      atomic.Int32
	timer      *time.Timer
	done       chan struct{}
	superseded *Handle
}

// ID returns the task id.
func (h *Handle) ID() string { return h.id }

// ContentID returns the content the task publishes.
func (h *Handle) ContentID() string { return h.spec.ContentID }

// FireAt returns the target execution time.
func (h *Handle) FireAt() time.Time { return h.spec.FireAt }

// State returns the current state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Cancelled reports whether the task was cancelled before it ran.
func (h *Handle) Cancelled() bool { return h.State() == StateCancelled }

// Done is closed once the task has run or been cancelled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Superseded returns the pending task this one replaced, if any.
func (h *Handle) Superseded() *Handle { return h.superseded }

// cancel moves a pending task to cancelled. Only the winner of the state
// change closes done.
func (h *Handle) cancel() bool {
	if !h.state.CompareAndSwap(int32(StatePending), int32(StateCancelled)) {
		return false
	}
	h.timer.Stop()
	close(h.done)
	return true
}

func (h *Handle) notifyCancel(reason CancelReason) {
	if h.spec.OnCancel != nil {
		h.spec.OnCancel(reason)
	}
}

// PendingTask is a read-only view of a live task.
type PendingTask struct {
	TaskID    string    `json:"task_id"`
	ContentID string    `json:"content_id"`
	FireAt    time.Time `json:"fire_at"`
	State     string    `json:"state"`
}

// Registry schedules and cancels delayed tasks.
type Registry struct {
	logger     *logging.Logger
	maxPending int
	workers    int

	mu     sync.Mutex
	tasks  map[string]*Handle
	closed bool

	queue    chan *Handle
	stopCh   chan struct{}
	runCtx   context.Context
	stopRuns context.CancelFunc
	wg       sync.WaitGroup
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l *logging.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithMaxPending bounds live tasks. Values below 1 are ignored.
func WithMaxPending(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxPending = n
		}
	}
}

// WithWorkers sets the worker pool size. Values below 1 are ignored.
func WithWorkers(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// NewRegistry creates a Registry and starts its workers.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		maxPending: DefaultMaxPending,
		workers:    DefaultWorkers,
		tasks:      make(map[string]*Handle),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger).Named("scheduling")
	r.queue = make(chan *Handle, r.workers)
	r.runCtx, r.stopRuns = context.WithCancel(context.Background())

	r.wg.Add(r.workers)
	for i := 0; i < r.workers; i++ {
		go r.worker()
	}
	return r
}

// Schedule registers spec, cancelling any pending task for the same content
// id first.
func (r *Registry) Schedule(spec TaskSpec) (*Handle, error) {
	if spec.ContentID == "" || spec.Run == nil {
		return nil, ErrInvalidTask
	}

	h := &Handle{id: uuid.NewString(), spec: spec, done: make(chan struct{})}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrShutdown
	}
	prev := r.tasks[spec.ContentID]
	if prev == nil && len(r.tasks) >= r.maxPending {
		r.mu.Unlock()
		return nil, ErrCapacity
	}
	if prev != nil && prev.cancel() {
		h.superseded = prev
	}
	r.tasks[spec.ContentID] = h
	h.timer = time.AfterFunc(time.Until(spec.FireAt), func() { r.enqueue(h) })
	r.mu.Unlock()

	if h.superseded != nil {
		h.superseded.notifyCancel(CancelReplaced)
	}
	r.logger.Debug(context.Background(), "task scheduled",
		zap.String("task.id", h.id),
		zap.String("content.id", spec.ContentID),
		zap.Time("fire_at", spec.FireAt),
		zap.Bool("replaced", h.superseded != nil))
	return h, nil
}

// Cancel removes the task for contentID. It reports whether an entry was
// found. A task already running is not interrupted.
func (r *Registry) Cancel(contentID string) bool {
	r.mu.Lock()
	h, ok := r.tasks[contentID]
	if ok {
		delete(r.tasks, contentID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	if h.cancel() {
		h.notifyCancel(CancelRequested)
	}
	r.logger.Debug(context.Background(), "task cancelled",
		zap.String("task.id", h.id),
		zap.String("content.id", contentID),
		zap.Stringer("state", h.State()))
	return true
}

// Get returns the live task for contentID.
func (r *Registry) Get(contentID string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.tasks[contentID]
	return h, ok
}

// Pending lists live tasks ordered by fire time.
func (r *Registry) Pending() []PendingTask {
	r.mu.Lock()
	out := make([]PendingTask, 0, len(r.tasks))
	for _, h := range r.tasks {
		out = append(out, PendingTask{
			TaskID:    h.id,
			ContentID: h.spec.ContentID,
			FireAt:    h.spec.FireAt,
			State:     h.State().String(),
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

// Len returns the number of live tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// HasCapacity reports whether a new content id could be scheduled.
func (r *Registry) HasCapacity() bool {
	return r.capacityErr() == nil
}

func (r *Registry) capacityErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		return ErrShutdown
	case len(r.tasks) >= r.maxPending:
		return ErrCapacity
	default:
		return nil
	}
}

// Shutdown cancels pending tasks, signals running tasks through their
// context, and waits for the workers until ctx is done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pending := make([]*Handle, 0, len(r.tasks))
	for _, h := range r.tasks {
		pending = append(pending, h)
	}
	r.tasks = make(map[string]*Handle)
	r.mu.Unlock()

	for _, h := range pending {
		if h.cancel() {
			h.notifyCancel(CancelShutdown)
		}
	}
	close(r.stopCh)
	r.stopRuns()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info(ctx, "scheduler stopped", zap.Int("cancelled", len(pending)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) enqueue(h *Handle) {
	if h.State() != StatePending {
		return
	}
	select {
	case r.queue <- h:
	case <-r.stopCh:
	}
}

func (r *Registry) worker() {
	defer r.wg.Done()
	for {
		select {
		case h := <-r.queue:
			r.execute(h)
		case <-r.stopCh:
			return
		}
	}
}

// execute runs h if it is still pending. Panics are recovered and logged.
func (r *Registry) execute(h *Handle) {
	if !h.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		return
	}
	ctx := logging.WithContentID(r.runCtx, h.spec.ContentID)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error(ctx, "scheduled task panicked",
				zap.String("task.id", h.id),
				zap.Any("panic", p),
				zap.Stack("stack"))
		}
		r.finish(h)
	}()

	if err := h.spec.Run(ctx); err != nil {
		r.logger.Warn(ctx, "scheduled task failed",
			zap.String("task.id", h.id),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	r.logger.Debug(ctx, "scheduled task completed",
		zap.String("task.id", h.id),
		zap.Duration("duration", time.Since(start)))
}

// finish marks h done and removes its entry unless it was already replaced
// or cancelled.
func (r *Registry) finish(h *Handle) {
	h.state.Store(int32(StateDone))
	r.mu.Lock()
	if r.tasks[h.spec.ContentID] == h {
		delete(r.tasks, h.spec.ContentID)
	}
	r.mu.Unlock()
	close(h.done)
}
