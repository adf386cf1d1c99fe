package scheduling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/contentd/internal/logging"
)

func newTestRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	r := NewRegistry(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("task %s did not finish", h.ContentID())
	}
}

func TestRegistry_RunsTaskAtFireTime(t *testing.T) {
	r := newTestRegistry(t)
	var ran atomic.Bool

	h, err := r.Schedule(TaskSpec{
		ContentID: "c1",
		FireAt:    time.Now().Add(20 * time.Millisecond),
		Run: func(ctx context.Context) error {
			ran.Store(true)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, StatePending, h.State())

	waitDone(t, h)
	assert.True(t, ran.Load())
	assert.Equal(t, StateDone, h.State())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_InvalidTask(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Schedule(TaskSpec{FireAt: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidTask)
	_, err = r.Schedule(TaskSpec{ContentID: "c1"})
	assert.ErrorIs(t, err, ErrInvalidTask)
}

func TestRegistry_CancelThenReplace(t *testing.T) {
	r := newTestRegistry(t)
	var reasons []CancelReason
	var mu sync.Mutex
	spec := func() TaskSpec {
		return TaskSpec{
			ContentID: "x",
			FireAt:    time.Now().Add(time.Hour),
			Run:       func(context.Context) error { return nil },
			OnCancel: func(reason CancelReason) {
				mu.Lock()
				defer mu.Unlock()
				reasons = append(reasons, reason)
			},
		}
	}

	first, err := r.Schedule(spec())
	require.NoError(t, err)
	second, err := r.Schedule(spec())
	require.NoError(t, err)

	assert.Equal(t, 1, r.Len())
	assert.True(t, first.Cancelled())
	assert.False(t, second.Cancelled())
	assert.Same(t, first, second.Superseded())
	live, ok := r.Get("x")
	require.True(t, ok)
	assert.Same(t, second, live)

	mu.Lock()
	assert.Equal(t, []CancelReason{CancelReplaced}, reasons)
	mu.Unlock()

	select {
	case <-first.Done():
	default:
		t.Fatal("replaced task should be done")
	}
}

func TestRegistry_CancelledTaskNeverRuns(t *testing.T) {
	r := newTestRegistry(t)
	var ran atomic.Bool
	var cancelled atomic.Int32

	h, err := r.Schedule(TaskSpec{
		ContentID: "c1",
		FireAt:    time.Now().Add(30 * time.Millisecond),
		Run:       func(context.Context) error { ran.Store(true); return nil },
		OnCancel:  func(CancelReason) { cancelled.Add(1) },
	})
	require.NoError(t, err)

	assert.True(t, r.Cancel("c1"))
	assert.False(t, r.Cancel("c1"))
	assert.False(t, r.Cancel("unknown"))

	time.Sleep(80 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.True(t, h.Cancelled())
	assert.Equal(t, int32(1), cancelled.Load())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_CancelWhileRunning(t *testing.T) {
	r := newTestRegistry(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var cancelHook atomic.Bool

	h, err := r.Schedule(TaskSpec{
		ContentID: "c1",
		FireAt:    time.Now(),
		Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
		OnCancel: func(CancelReason) { cancelHook.Store(true) },
	})
	require.NoError(t, err)
	<-started

	assert.True(t, r.Cancel("c1"))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, StateRunning, h.State())

	close(release)
	waitDone(t, h)
	assert.Equal(t, StateDone, h.State())
	assert.False(t, cancelHook.Load())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Capacity(t *testing.T) {
	r := newTestRegistry(t, WithMaxPending(2))
	spec := func(id string) TaskSpec {
		return TaskSpec{ContentID: id, FireAt: time.Now().Add(time.Hour), Run: func(context.Context) error { return nil }}
	}

	_, err := r.Schedule(spec("a"))
	require.NoError(t, err)
	_, err = r.Schedule(spec("b"))
	require.NoError(t, err)
	assert.False(t, r.HasCapacity())

	_, err = r.Schedule(spec("c"))
	assert.ErrorIs(t, err, ErrCapacity)

	_, err = r.Schedule(spec("a"))
	assert.NoError(t, err, "replacing an id needs no new slot")

	r.Cancel("b")
	assert.True(t, r.HasCapacity())
}

func TestRegistry_Shutdown(t *testing.T) {
	r := NewRegistry()
	var reason atomic.Int32

	h, err := r.Schedule(TaskSpec{
		ContentID: "c1",
		FireAt:    time.Now().Add(time.Hour),
		Run:       func(context.Context) error { return nil },
		OnCancel:  func(cr CancelReason) { reason.Store(int32(cr)) },
	})
	require.NoError(t, err)

	require.NoError(t, r.Shutdown(context.Background()))
	assert.True(t, h.Cancelled())
	assert.Equal(t, int32(CancelShutdown), reason.Load())
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.HasCapacity())

	_, err = r.Schedule(TaskSpec{ContentID: "c2", FireAt: time.Now(), Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrShutdown)
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestRegistry_PanicAndErrorAreContained(t *testing.T) {
	logger := logging.NewTestLogger()
	r := newTestRegistry(t, WithRegistryLogger(logger.Logger), WithWorkers(1))

	boom, err := r.Schedule(TaskSpec{ContentID: "p", FireAt: time.Now(), Run: func(context.Context) error { panic("boom") }})
	require.NoError(t, err)
	waitDone(t, boom)

	failing, err := r.Schedule(TaskSpec{ContentID: "f", FireAt: time.Now(), Run: func(context.Context) error { return errors.New("nope") }})
	require.NoError(t, err)
	waitDone(t, failing)

	var ran atomic.Bool
	ok, err := r.Schedule(TaskSpec{ContentID: "ok", FireAt: time.Now(), Run: func(context.Context) error { ran.Store(true); return nil }})
	require.NoError(t, err)
	waitDone(t, ok)

	assert.True(t, ran.Load())
	logger.AssertLogged(t, zapcore.ErrorLevel, "scheduled task panicked")
	logger.AssertLogged(t, zapcore.WarnLevel, "scheduled task failed")
}

func TestRegistry_WorkerPoolIsBounded(t *testing.T) {
	r := newTestRegistry(t, WithWorkers(2))
	var inflight, peak atomic.Int32
	var handles []*Handle

	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		h, err := r.Schedule(TaskSpec{
			ContentID: id,
			FireAt:    time.Now(),
			Run: func(context.Context) error {
				n := inflight.Add(1)
				defer inflight.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				return nil
			},
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for _, h := range handles {
		waitDone(t, h)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRegistry_ConcurrentScheduleAndCancel(t *testing.T) {
	r := newTestRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = r.Schedule(TaskSpec{
				ContentID: "same",
				FireAt:    time.Now().Add(time.Hour),
				Run:       func(context.Context) error { return nil },
			})
		}()
		go func() {
			defer wg.Done()
			r.Cancel("same")
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Len(), 1)
	for _, p := range r.Pending() {
		assert.Equal(t, "pending", p.State)
	}
}

func TestRegistry_PendingOrderedByFireTime(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	noop := func(context.Context) error { return nil }
	_, _ = r.Schedule(TaskSpec{ContentID: "late", FireAt: now.Add(2 * time.Hour), Run: noop})
	_, _ = r.Schedule(TaskSpec{ContentID: "early", FireAt: now.Add(time.Hour), Run: noop})

	pending := r.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "early", pending[0].ContentID)
	assert.Equal(t, "late", pending[1].ContentID)
}
