package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/events"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/orchestrator"
	"github.com/fyrsmithlabs/contentd/internal/publish"
	"github.com/fyrsmithlabs/contentd/internal/review"
	"github.com/fyrsmithlabs/contentd/internal/scheduling"
)

const goodBody = "This body is long enough to pass every publishing check."

type testEnv struct {
	server *Server
	repo   *content.MemoryRepository
	sink   *events.MemorySink
}

func setupTestServer(t *testing.T, mutate ...func(*orchestrator.Config, *Config)) *testEnv {
	t.Helper()
	ocfg := orchestrator.DefaultConfig()
	hcfg := &Config{Host: "localhost", Port: 8420}
	for _, m := range mutate {
		m(&ocfg, hcfg)
	}

	repo := content.NewMemoryRepository()
	sink := events.NewMemorySink()

	registry := scheduling.NewRegistry()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = registry.Shutdown(ctx)
	})
	scheduler := scheduling.NewStrategy(registry, scheduling.WithSink(sink))

	wf, err := review.NewWorkflow(review.DefaultConfig(), review.WithAssigner(
		review.NewPoolAssigner(review.Reviewer{ID: "r1", Name: "Rita", Role: content.RoleEditor})))
	require.NoError(t, err)
	reviews := review.NewStrategy(wf, review.WithSink(sink))

	orch, err := orchestrator.New(ocfg)
	require.NoError(t, err)
	for _, s := range []publish.Strategy{
		publish.NewImmediateStrategy(publish.WithSink(sink)),
		scheduler,
		reviews,
	} {
		require.NoError(t, orch.Register(s))
	}

	server, err := NewServer(Services{
		Repository:   repo,
		Orchestrator: orch,
		Scheduler:    scheduler,
		Review:       reviews,
	}, logging.NewNop(), hcfg)
	require.NoError(t, err)
	return &testEnv{server: server, repo: repo, sink: sink}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, actorID, role string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set(HeaderActorID, actorID)
	}
	if role != "" {
		req.Header.Set(HeaderActorRole, role)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seed(t *testing.T, id, body string) *content.Article {
	t.Helper()
	a := content.NewArticle(id, "A fine title", body).WithAuthor("au")
	require.NoError(t, e.repo.Save(context.Background(), a))
	return a
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServer(t *testing.T) {
	env := setupTestServer(t)
	svc := env.server.svc

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(svc, logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8420, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(svc, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when orchestrator is nil", func(t *testing.T) {
		bad := svc
		bad.Orchestrator = nil
		_, err := NewServer(bad, logging.NewNop(), nil)
		assert.ErrorContains(t, err, "orchestrator cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/health", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Services["scheduler"])
}

func TestHandleCreateContent(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/content",
		CreateContentRequest{ID: "c1", Title: "Hello", Body: goodBody}, "au", "author")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[ContentResponse](t, rec)
	assert.Equal(t, content.StatusDraft, created.Status)
	assert.Equal(t, "au", created.ModifiedBy)

	rec = env.do(t, http.MethodPost, "/api/v1/content",
		CreateContentRequest{ID: "c1", Title: "Hello", Body: goodBody}, "au", "author")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/content",
		CreateContentRequest{Title: "Generated", Body: goodBody}, "au", "author")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, decode[ContentResponse](t, rec).ID)

	rec = env.do(t, http.MethodPost, "/api/v1/content", CreateContentRequest{Title: "x"}, "au", "author")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/content", CreateContentRequest{Title: "x", Body: goodBody}, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/content", CreateContentRequest{Title: "x", Body: goodBody}, "au", "overlord")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetContent(t *testing.T) {
	env := setupTestServer(t)
	env.seed(t, "c1", goodBody)

	rec := env.do(t, http.MethodGet, "/api/v1/content/c1", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c1", decode[ContentResponse](t, rec).ID)

	rec = env.do(t, http.MethodGet, "/api/v1/content/missing", nil, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePublish_Immediate(t *testing.T) {
	env := setupTestServer(t)
	a := env.seed(t, "c1", goodBody)

	rec := env.do(t, http.MethodPost, "/api/v1/content/c1/publish",
		PublishRequest{Priority: "high"}, "ed", "editor")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[PublishResponse](t, rec)
	assert.Equal(t, publish.NameImmediate, resp.Strategy)
	assert.False(t, resp.FallbackUsed)
	assert.Equal(t, content.StatusPublished, resp.Content.Status)
	assert.Equal(t, content.StatusPublished, a.Status())
	assert.Len(t, env.sink.OfType(events.TypePublished), 1)

	rec = env.do(t, http.MethodPost, "/api/v1/content/c1/publish",
		PublishRequest{Priority: "urgent-ish"}, "ed", "editor")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePublish_ValidationFailure(t *testing.T) {
	env := setupTestServer(t)
	env.seed(t, "c1", "short")

	rec := env.do(t, http.MethodPost, "/api/v1/content/c1/publish", nil, "ed", "editor")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "validation", resp.Kind)
	assert.Equal(t, publish.NameImmediate, resp.Strategy)
	assert.Contains(t, resp.Error, "at least")
}

func TestHandlePublish_NoStrategy(t *testing.T) {
	env := setupTestServer(t, func(o *orchestrator.Config, _ *Config) {
		o.DefaultStrategy = "missing"
		o.FallbackStrategy = "missing"
		o.AutoSelection = false
	})
	env.seed(t, "c1", goodBody)

	rec := env.do(t, http.MethodPost, "/api/v1/content/c1/publish", nil, "ed", "editor")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "no_strategy", decode[ErrorResponse](t, rec).Kind)
}

func TestHandlePublish_ReviewFlow(t *testing.T) {
	env := setupTestServer(t)
	a := env.seed(t, "c1", goodBody)

	rec := env.do(t, http.MethodPost, "/api/v1/content/c1/publish", nil, "au", "author")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, publish.NameReview, decode[PublishResponse](t, rec).Strategy)
	assert.Equal(t, content.StatusReview, a.Status())

	rec = env.do(t, http.MethodGet, "/api/v1/reviews/c1", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rc := decode[review.Case](t, rec)
	assert.Equal(t, review.StatusPendingReview, rc.Status)
	assert.Equal(t, []string{"r1"}, rc.Reviewers)

	rec = env.do(t, http.MethodPost, "/api/v1/reviews/c1/decisions",
		DecisionRequest{Decision: "approve"}, "intruder", "editor")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/reviews/c1/decisions",
		DecisionRequest{Decision: "maybe"}, "r1", "editor")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/reviews/c1/decisions",
		DecisionRequest{Decision: "approve", Comment: "ship it"}, "r1", "editor")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, review.StatusPublished, decode[review.Case](t, rec).Status)
	assert.Equal(t, content.StatusPublished, a.Status())

	rec = env.do(t, http.MethodGet, "/api/v1/reviews/c1", nil, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleWithdraw(t *testing.T) {
	env := setupTestServer(t)
	a := env.seed(t, "c1", goodBody)

	rec := env.do(t, http.MethodPost, "/api/v1/content/c1/publish", nil, "au", "author")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/reviews/c1/withdraw", nil, "stranger", "author")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/reviews/c1/withdraw", nil, "au", "author")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, review.StatusWithdrawn, decode[review.Case](t, rec).Status)
	assert.Equal(t, content.StatusDraft, a.Status())
}

func TestHandleCancelSchedule(t *testing.T) {
	env := setupTestServer(t)
	a := env.seed(t, "c1", goodBody)
	at := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)

	rec := env.do(t, http.MethodPost, "/api/v1/content/c1/publish",
		PublishRequest{ScheduledFor: &at}, "ed", "editor")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[PublishResponse](t, rec)
	assert.Equal(t, publish.NameScheduled, resp.Strategy)
	require.NotNil(t, resp.Content.ScheduledFor)
	assert.True(t, at.Equal(*resp.Content.ScheduledFor))
	assert.Positive(t, resp.EstimateMS)

	rec = env.do(t, http.MethodGet, "/health", nil, "", "")
	assert.Equal(t, 1, decode[HealthResponse](t, rec).Scheduled)

	rec = env.do(t, http.MethodDelete, "/api/v1/content/c1/schedule", nil, "ed", "editor")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[CancelResponse](t, rec).Cancelled)
	_, scheduled := a.ScheduledFor()
	assert.False(t, scheduled)

	rec = env.do(t, http.MethodDelete, "/api/v1/content/c1/schedule", nil, "ed", "editor")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	env := setupTestServer(t, func(_ *orchestrator.Config, h *Config) {
		h.RateLimit = 0.001
		h.Burst = 1
	})
	env.seed(t, "c1", goodBody)

	rec := env.do(t, http.MethodPost, "/api/v1/content/c1/publish", nil, "ed", "editor")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/content/c1/publish", nil, "ed", "editor")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// buckets are per actor
	rec = env.do(t, http.MethodPost, "/api/v1/content/c1/publish", nil, "other", "editor")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleStrategies(t *testing.T) {
	env := setupTestServer(t)
	env.seed(t, "c1", goodBody)
	rec := env.do(t, http.MethodPost, "/api/v1/content/c1/publish", nil, "ed", "editor")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/strategies", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[StrategiesResponse](t, rec)
	assert.True(t, resp.AutoSelection)
	require.Len(t, resp.Strategies, 3)

	byName := map[string]StrategyResponse{}
	for _, s := range resp.Strategies {
		byName[s.Name] = s
	}
	assert.Equal(t, int64(1), byName[publish.NameImmediate].Usage.SuccessCount)
	assert.InDelta(t, 100.0, byName[publish.NameImmediate].SuccessRate, 0.001)
	assert.True(t, byName[publish.NameImmediate].Capabilities.SupportsRollback)
	assert.Zero(t, byName[publish.NameReview].Usage.UsageCount)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	env.seed(t, "c1", goodBody)
	env.do(t, http.MethodPost, "/api/v1/content/c1/publish", nil, "ed", "editor")

	rec := env.do(t, http.MethodGet, "/metrics", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "contentd_strategy_attempts_total")
}
