package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/events"
	"github.com/fyrsmithlabs/contentd/internal/publish"
	"github.com/fyrsmithlabs/contentd/internal/telemetry"
)

var errBoom = errors.New("boom")

// fakeStrategy records calls and fails on demand.
type fakeStrategy struct {
	name        string
	priority    int
	validateErr error
	publishErr  error
	panics      bool
	block       bool

	validated atomic.Int32
	published atomic.Int32
}

func (f *fakeStrategy) Name() string  { return f.name }
func (f *fakeStrategy) Priority() int { return f.priority }

func (f *fakeStrategy) Validate(context.Context, content.Item, *publish.Request) error {
	f.validated.Add(1)
	return f.validateErr
}

func (f *fakeStrategy) Publish(ctx context.Context, _ content.Item, _ *publish.Request) error {
	f.published.Add(1)
	if f.panics {
		panic("strategy exploded")
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.publishErr
}

func editor() content.Actor { return content.Actor{ID: "ed", Role: content.RoleEditor} }
func author() content.Actor { return content.Actor{ID: "au", Role: content.RoleAuthor} }

func item() *content.Article {
	return content.NewArticle("c1", "A fine title", strings.Repeat("word ", 30))
}

func newTestOrchestrator(t *testing.T, cfg Config, strategies ...publish.Strategy) *Orchestrator {
	t.Helper()
	o, err := New(cfg)
	require.NoError(t, err)
	for _, s := range strategies {
		require.NoError(t, o.Register(s))
	}
	return o
}

func manual(pinned string) Config {
	cfg := DefaultConfig()
	cfg.AutoSelection = false
	cfg.DefaultStrategy = pinned
	return cfg
}

func TestDefaultSelector(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sel := DefaultSelector{Clock: func() time.Time { return now }}
	ids := strings.Repeat("x,", 11)

	tests := []struct {
		name string
		req  *publish.Request
		want string
	}{
		{"scheduled wins", publish.NewRequest(author(),
			publish.WithScheduledFor(now.Add(time.Hour)),
			publish.WithProperty(publish.PropAutoPublish, "true")), publish.NameScheduled},
		{"past schedule ignored", publish.NewRequest(editor(),
			publish.WithScheduledFor(now.Add(-time.Hour))), publish.NameImmediate},
		{"large batch", publish.NewRequest(editor(),
			publish.WithProperty(publish.PropBatchItems, ids)), publish.NameBatch},
		{"small batch", publish.NewRequest(editor(),
			publish.WithProperty(publish.PropBatchItems, "a,b")), publish.NameImmediate},
		{"auto", publish.NewRequest(author(),
			publish.WithProperty(publish.PropAutoPublish, "true")), publish.NameAuto},
		{"author goes to review", publish.NewRequest(author(),
			publish.WithPriority(publish.PriorityEmergency)), publish.NameReview},
		{"guest goes to review", publish.NewRequest(content.Actor{ID: "g"}), publish.NameReview},
		{"emergency", publish.NewRequest(editor(),
			publish.WithPriority(publish.PriorityEmergency)), publish.NameImmediate},
		{"high editor", publish.NewRequest(editor(),
			publish.WithPriority(publish.PriorityHigh)), publish.NameImmediate},
		{"default", publish.NewRequest(editor()), publish.NameImmediate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sel.Select(item(), tt.req, nil, nil))
		})
	}
	assert.Empty(t, sel.Select(item(), nil, nil, nil))
}

func TestPublishContent_FallbackOnValidationFailure(t *testing.T) {
	review := &fakeStrategy{name: publish.NameReview, validateErr: publish.Validation("review.validate", "c1", "", errBoom)}
	immediate := &fakeStrategy{name: publish.NameImmediate}
	o := newTestOrchestrator(t, DefaultConfig(), review, immediate)

	before := testutil.ToFloat64(StrategyFallbacks.WithLabelValues(publish.NameReview, publish.NameImmediate))
	res, err := o.PublishContent(context.Background(), item(), publish.NewRequest(author()))
	require.NoError(t, err)

	assert.Equal(t, publish.NameImmediate, res.Strategy)
	assert.True(t, res.FallbackUsed)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, StageValidate, res.Attempts[0].Stage)
	assert.Equal(t, publish.KindValidation, publish.KindOf(res.Attempts[0].Err))
	assert.True(t, res.Attempts[1].OK())

	assert.Zero(t, review.published.Load())
	assert.Equal(t, int32(1), immediate.published.Load())

	rs, ok := o.Stats(publish.NameReview)
	require.True(t, ok)
	assert.Equal(t, int64(1), rs.UsageCount)
	assert.Equal(t, int64(1), rs.FailureCount)
	is, ok := o.Stats(publish.NameImmediate)
	require.True(t, ok)
	assert.Equal(t, int64(1), is.SuccessCount)

	after := testutil.ToFloat64(StrategyFallbacks.WithLabelValues(publish.NameReview, publish.NameImmediate))
	assert.Equal(t, before+1, after)
}

func TestPublishContent_FallbackOnExecutionFailure(t *testing.T) {
	auto := &fakeStrategy{name: publish.NameAuto, publishErr: errBoom}
	immediate := &fakeStrategy{name: publish.NameImmediate}
	o := newTestOrchestrator(t, DefaultConfig(), auto, immediate)

	req := publish.NewRequest(editor(), publish.WithProperty(publish.PropAutoPublish, "true"))
	res, err := o.PublishContent(context.Background(), item(), req)
	require.NoError(t, err)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, StagePublish, res.Attempts[0].Stage)
	assert.Equal(t, publish.KindExecution, publish.KindOf(res.Attempts[0].Err))
	assert.ErrorIs(t, res.Attempts[0].Err, errBoom)
}

func TestPublishContent_NoFallbackFromFallback(t *testing.T) {
	immediate := &fakeStrategy{name: publish.NameImmediate, publishErr: errBoom}
	o := newTestOrchestrator(t, DefaultConfig(), immediate)

	res, err := o.PublishContent(context.Background(), item(), publish.NewRequest(editor()))
	require.Error(t, err)
	assert.Len(t, res.Attempts, 1)
	assert.False(t, res.FallbackUsed)
	assert.Equal(t, publish.KindExecution, publish.KindOf(err))

	var pe *publish.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, publish.NameImmediate, pe.Strategy)
	assert.NotContains(t, pe.UserMessage(), "boom")
}

func TestPublishContent_FallbackDisabled(t *testing.T) {
	review := &fakeStrategy{name: publish.NameReview, validateErr: errBoom}
	immediate := &fakeStrategy{name: publish.NameImmediate}
	cfg := DefaultConfig()
	cfg.FallbackEnabled = false
	o := newTestOrchestrator(t, cfg, review, immediate)

	res, err := o.PublishContent(context.Background(), item(), publish.NewRequest(author()))
	require.Error(t, err)
	assert.Equal(t, publish.KindValidation, publish.KindOf(err))
	assert.Len(t, res.Attempts, 1)
	assert.Zero(t, immediate.validated.Load())
}

func TestPublishContent_ChainedFallbackIsBounded(t *testing.T) {
	// fallback points at itself after failing; the tried set stops it
	bad := &fakeStrategy{name: "bad", validateErr: errBoom}
	cfg := DefaultConfig()
	cfg.DefaultStrategy = "bad"
	cfg.FallbackStrategy = "bad"
	cfg.MaxAttempts = 5
	o := newTestOrchestrator(t, cfg, bad)

	res, err := o.PublishContent(context.Background(), item(), publish.NewRequest(editor()))
	require.Error(t, err)
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, int32(1), bad.validated.Load())
}

func TestPublishContent_StatsMonotonic(t *testing.T) {
	s := &fakeStrategy{name: publish.NameImmediate}
	cfg := manual(publish.NameImmediate)
	cfg.FallbackEnabled = false
	o := newTestOrchestrator(t, cfg, s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := o.PublishContent(ctx, item(), publish.NewRequest(editor()))
		require.NoError(t, err)
	}
	s.publishErr = errBoom
	for i := 0; i < 2; i++ {
		_, err := o.PublishContent(ctx, item(), publish.NewRequest(editor()))
		require.Error(t, err)
	}

	st, ok := o.Stats(publish.NameImmediate)
	require.True(t, ok)
	assert.Equal(t, int64(5), st.UsageCount)
	assert.Equal(t, int64(3), st.SuccessCount)
	assert.Equal(t, int64(2), st.FailureCount)
	assert.InDelta(t, 60.0, st.SuccessRate(), 0.001)
	assert.False(t, st.FirstUsed.After(st.LastUsed))
	assert.Equal(t, st.TotalDuration/5, st.AverageDuration())

	perf := o.Performance(publish.NameImmediate)
	assert.Equal(t, 5, perf.Samples)
	assert.InDelta(t, 60.0, perf.SuccessRate, 0.001)
	assert.False(t, perf.LastSuccess)
}

func TestPublishContent_ConcurrentStats(t *testing.T) {
	s := &fakeStrategy{name: publish.NameImmediate}
	o := newTestOrchestrator(t, manual(publish.NameImmediate), s)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.PublishContent(context.Background(), item(), publish.NewRequest(editor()))
		}()
	}
	wg.Wait()

	st, _ := o.Stats(publish.NameImmediate)
	assert.Equal(t, int64(50), st.UsageCount)
	assert.Equal(t, int64(50), st.SuccessCount)
}

func TestPublishContent_NoStrategy(t *testing.T) {
	o := newTestOrchestrator(t, DefaultConfig())

	_, err := o.PublishContent(context.Background(), item(), publish.NewRequest(editor()))
	require.Error(t, err)
	assert.Equal(t, publish.KindNoStrategy, publish.KindOf(err))
	assert.ErrorIs(t, err, ErrNoStrategy)
	assert.Empty(t, o.AllStats())
}

func TestPublishContent_NilArguments(t *testing.T) {
	o := newTestOrchestrator(t, DefaultConfig(), &fakeStrategy{name: publish.NameImmediate})

	_, err := o.PublishContent(context.Background(), nil, publish.NewRequest(editor()))
	assert.ErrorIs(t, err, publish.ErrNilArgument)
	_, err = o.PublishContent(context.Background(), item(), nil)
	assert.Equal(t, publish.KindValidation, publish.KindOf(err))
}

func TestPublishContent_SelectorFallsBackToDefault(t *testing.T) {
	immediate := &fakeStrategy{name: publish.NameImmediate}
	var seen []string
	sel := SelectorFunc(func(_ content.Item, _ *publish.Request, available []string, _ map[string]Performance) string {
		seen = available
		return "missing"
	})
	o, err := New(DefaultConfig(), WithSelector(sel))
	require.NoError(t, err)
	require.NoError(t, o.Register(immediate))

	res, err := o.PublishContent(context.Background(), item(), publish.NewRequest(editor()))
	require.NoError(t, err)
	assert.Equal(t, publish.NameImmediate, res.Strategy)
	assert.Equal(t, []string{publish.NameImmediate}, seen)
}

// mockSelector implements Selector for testing.
type mockSelector struct {
	mock.Mock
}

func (m *mockSelector) Select(item content.Item, req *publish.Request, available []string, history map[string]Performance) string {
	args := m.Called(item, req, available, history)
	return args.String(0)
}

func TestPublishContent_SelectorSeesPerformanceHistory(t *testing.T) {
	immediate := &fakeStrategy{name: publish.NameImmediate}
	batch := &fakeStrategy{name: publish.NameBatch, publishErr: errBoom}

	sel := &mockSelector{}
	sel.On("Select", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(h map[string]Performance) bool {
		return len(h) == 0
	})).Return(publish.NameBatch).Once()
	sel.On("Select", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(h map[string]Performance) bool {
		p, ok := h[publish.NameBatch]
		return ok && p.Samples == 1 && p.SuccessRate == 0
	})).Return(publish.NameImmediate).Once()

	o, err := New(DefaultConfig(), WithSelector(sel))
	require.NoError(t, err)
	require.NoError(t, o.Register(immediate))
	require.NoError(t, o.Register(batch))

	res, err := o.PublishContent(context.Background(), item(), publish.NewRequest(editor()))
	require.NoError(t, err)
	assert.True(t, res.FallbackUsed)

	res, err = o.PublishContent(context.Background(), item(), publish.NewRequest(editor()))
	require.NoError(t, err)
	assert.Equal(t, publish.NameImmediate, res.Strategy)
	assert.False(t, res.FallbackUsed)

	sel.AssertExpectations(t)
}

func TestPublishContent_ManualMode(t *testing.T) {
	immediate := &fakeStrategy{name: publish.NameImmediate}
	batch := &fakeStrategy{name: publish.NameBatch}
	o := newTestOrchestrator(t, manual(publish.NameImmediate), immediate, batch)

	require.NoError(t, o.Pin(publish.NameBatch))
	res, err := o.PublishContent(context.Background(), item(), publish.NewRequest(author()))
	require.NoError(t, err)
	assert.Equal(t, publish.NameBatch, res.Strategy)

	assert.ErrorIs(t, o.Pin("nope"), ErrUnknownStrategy)

	o.SetAutoSelection(true)
	res, err = o.PublishContent(context.Background(), item(), publish.NewRequest(editor()))
	require.NoError(t, err)
	assert.Equal(t, publish.NameImmediate, res.Strategy)
}

func TestPublishContent_PanicIsRecorded(t *testing.T) {
	bad := &fakeStrategy{name: publish.NameAuto, panics: true}
	immediate := &fakeStrategy{name: publish.NameImmediate}
	var observed []Attempt
	var mu sync.Mutex
	o, err := New(DefaultConfig(), OnAttempt(func(_ content.Item, a Attempt) {
		mu.Lock()
		observed = append(observed, a)
		mu.Unlock()
	}))
	require.NoError(t, err)
	require.NoError(t, o.Register(bad))
	require.NoError(t, o.Register(immediate))

	req := publish.NewRequest(editor(), publish.WithProperty(publish.PropAutoPublish, "true"))
	res, err := o.PublishContent(context.Background(), item(), req)
	require.NoError(t, err)
	assert.True(t, res.FallbackUsed)

	st, _ := o.Stats(publish.NameAuto)
	assert.Equal(t, int64(1), st.FailureCount)
	require.Len(t, observed, 2)
	assert.Equal(t, publish.KindExecution, publish.KindOf(observed[0].Err))
	assert.True(t, observed[1].OK())
}

func TestPublishContent_EnforcedTimeout(t *testing.T) {
	slow := &fakeStrategy{name: publish.NameImmediate, block: true}
	cfg := manual(publish.NameImmediate)
	cfg.EnforceTimeout = true
	cfg.StrategyTimeout = 20 * time.Millisecond
	o := newTestOrchestrator(t, cfg, slow)

	_, err := o.PublishContent(context.Background(), item(), publish.NewRequest(editor()))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, publish.KindExecution, publish.KindOf(err))
}

func TestRegistration(t *testing.T) {
	o := newTestOrchestrator(t, DefaultConfig(),
		&fakeStrategy{name: publish.NameImmediate, priority: 80},
		&fakeStrategy{name: publish.NameBatch, priority: 40},
		&fakeStrategy{name: publish.NameReview, priority: 70},
	)

	assert.ErrorIs(t, o.Register(&fakeStrategy{name: publish.NameBatch}), ErrDuplicateStrategy)
	assert.ErrorIs(t, o.Register(nil), publish.ErrNilArgument)

	infos := o.Strategies()
	require.Len(t, infos, 3)
	assert.Equal(t, publish.NameImmediate, infos[0].Name)
	assert.Equal(t, publish.NameBatch, infos[2].Name)

	assert.ErrorIs(t, o.Unregister(publish.NameImmediate), ErrProtectedStrategy)
	assert.ErrorIs(t, o.Unregister("nope"), ErrUnknownStrategy)

	require.NoError(t, o.Pin(publish.NameBatch))
	require.NoError(t, o.Unregister(publish.NameBatch))
	assert.Equal(t, publish.NameImmediate, o.Pinned())
	_, ok := o.Strategy(publish.NameBatch)
	assert.False(t, ok)
}

func TestPublishContent_Telemetry(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	review := &fakeStrategy{name: publish.NameReview, validateErr: errBoom}
	immediate := &fakeStrategy{name: publish.NameImmediate}
	o, err := New(DefaultConfig(), WithTelemetry(tel.Telemetry))
	require.NoError(t, err)
	require.NoError(t, o.Register(review))
	require.NoError(t, o.Register(immediate))

	ctx := context.Background()
	_, err = o.PublishContent(ctx, item(), publish.NewRequest(author()))
	require.NoError(t, err)

	tel.AssertSpanExists(t, "orchestrator.publish")
	tel.AssertSpanAttribute(t, "orchestrator.publish", "strategy", publish.NameImmediate)
	tel.AssertSpanAttribute(t, "orchestrator.publish", "fallback_used", true)
	assert.Len(t, tel.SpansByName("orchestrator.attempt"), 2)

	assert.Equal(t, int64(1), tel.CounterValue(ctx, "contentd.orchestrator.attempts",
		attribute.String("strategy", publish.NameReview),
		attribute.String("outcome", "validation")))
	assert.Equal(t, int64(1), tel.CounterValue(ctx, "contentd.orchestrator.attempts",
		attribute.String("outcome", "success")))
}

func TestPublishContent_WithImmediateStrategy(t *testing.T) {
	sink := events.NewMemorySink()
	o := newTestOrchestrator(t, DefaultConfig(), publish.NewImmediateStrategy(publish.WithSink(sink)))
	a := item()

	res, err := o.PublishContent(context.Background(), a, publish.NewRequest(editor()))
	require.NoError(t, err)
	assert.Equal(t, content.StatusPublished, a.Status())
	assert.Positive(t, res.Estimate)
	assert.Len(t, sink.OfType(events.TypePublished), 1)
}

func TestPerformanceTracker_Window(t *testing.T) {
	p := NewPerformanceTracker(4)
	for i := 1; i <= 6; i++ {
		p.Record("s", time.Duration(i)*time.Millisecond, i%2 == 0)
	}

	perf := p.Get("s")
	assert.Equal(t, 4, perf.Samples)
	assert.Equal(t, 6*time.Millisecond, perf.LastDuration)
	assert.True(t, perf.LastSuccess)
	assert.Equal(t, 6*time.Millisecond, perf.P95Duration)
	assert.Equal(t, 4500*time.Microsecond, perf.AvgDuration)
	assert.InDelta(t, 50.0, perf.SuccessRate, 0.001)

	assert.Zero(t, p.Get("unknown").Samples)
	assert.Contains(t, p.Snapshot(), "s")
}

func TestConfig(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DefaultStrategy = ""
	_, err := New(cfg)
	assert.Error(t, err)
}
