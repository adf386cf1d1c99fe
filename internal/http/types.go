package http

import (
	"time"

	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/orchestrator"
	"github.com/fyrsmithlabs/contentd/internal/publish"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services,omitempty"`
	Scheduled int               `json:"scheduled"`
	InReview  int               `json:"in_review"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// CreateContentRequest is the request body for POST /api/v1/content.
type CreateContentRequest struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Category string `json:"category,omitempty"`
}

// ContentResponse describes one content item.
type ContentResponse struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Body         string         `json:"body"`
	Category     string         `json:"category,omitempty"`
	Status       content.Status `json:"status"`
	PublishedAt  *time.Time     `json:"published_at,omitempty"`
	ModifiedAt   time.Time      `json:"modified_at"`
	ModifiedBy   string         `json:"modified_by,omitempty"`
	ScheduledFor *time.Time     `json:"scheduled_for,omitempty"`
}

func contentResponse(item content.Item) ContentResponse {
	r := ContentResponse{
		ID:       item.ID(),
		Title:    item.Title(),
		Body:     item.Body(),
		Category: item.Category(),
		Status:   item.Status(),
	}
	if at, ok := item.PublishedAt(); ok {
		r.PublishedAt = &at
	}
	if at, ok := item.ScheduledFor(); ok {
		r.ScheduledFor = &at
	}
	r.ModifiedAt, r.ModifiedBy = item.LastModified()
	return r
}

// PublishRequest is the request body for POST /api/v1/content/:id/publish.
type PublishRequest struct {
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
	Priority     string            `json:"priority,omitempty"`
	Environment  string            `json:"environment,omitempty"`
	Channel      string            `json:"channel,omitempty"`
	Force        bool              `json:"force,omitempty"`
	Notify       *bool             `json:"notify,omitempty"`
	Comment      string            `json:"comment,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
}

// options converts the body into request options. ok is false for an
// unknown priority.
func (p PublishRequest) options() ([]publish.RequestOption, bool) {
	prio, ok := publish.ParsePriority(p.Priority)
	if !ok {
		return nil, false
	}
	opts := []publish.RequestOption{
		publish.WithPriority(prio),
		publish.WithForce(p.Force),
		publish.WithComment(p.Comment),
		publish.WithTags(p.Tags...),
	}
	if p.ScheduledFor != nil {
		opts = append(opts, publish.WithScheduledFor(*p.ScheduledFor))
	}
	if p.Environment != "" {
		opts = append(opts, publish.WithEnvironment(p.Environment))
	}
	if p.Channel != "" {
		opts = append(opts, publish.WithChannel(p.Channel))
	}
	if p.Notify != nil {
		opts = append(opts, publish.WithNotify(*p.Notify))
	}
	for k, v := range p.Properties {
		opts = append(opts, publish.WithProperty(k, v))
	}
	return opts, true
}

// AttemptResponse describes one strategy attempt.
type AttemptResponse struct {
	Strategy   string  `json:"strategy"`
	Stage      string  `json:"stage"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// PublishResponse is the response body for a successful publish.
type PublishResponse struct {
	Content      ContentResponse   `json:"content"`
	Strategy     string            `json:"strategy"`
	FallbackUsed bool              `json:"fallback_used"`
	Attempts     []AttemptResponse `json:"attempts"`
	DurationMS   float64           `json:"duration_ms"`
	EstimateMS   float64           `json:"estimate_ms,omitempty"`
}

func publishResponse(item content.Item, res *orchestrator.Result) PublishResponse {
	r := PublishResponse{
		Content:      contentResponse(item),
		Strategy:     res.Strategy,
		FallbackUsed: res.FallbackUsed,
		DurationMS:   ms(res.Duration),
		EstimateMS:   ms(res.Estimate),
	}
	for _, a := range res.Attempts {
		ar := AttemptResponse{Strategy: a.Strategy, Stage: string(a.Stage), DurationMS: ms(a.Duration)}
		if a.Err != nil {
			ar.Error = publish.UserMessageOf(a.Err)
		}
		r.Attempts = append(r.Attempts, ar)
	}
	return r
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// DecisionRequest is the request body for POST /api/v1/reviews/:id/decisions.
type DecisionRequest struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment,omitempty"`
}

// CancelResponse is the response body for DELETE /api/v1/content/:id/schedule.
type CancelResponse struct {
	ContentID string `json:"content_id"`
	Cancelled bool   `json:"cancelled"`
}

// StrategyResponse describes one registered strategy and its statistics.
type StrategyResponse struct {
	publish.Info
	Usage       orchestrator.UsageStats  `json:"usage"`
	SuccessRate float64                  `json:"success_rate"`
	AvgMS       float64                  `json:"avg_duration_ms"`
	Performance orchestrator.Performance `json:"performance"`
}

// StrategiesResponse is the response body for GET /api/v1/strategies.
type StrategiesResponse struct {
	AutoSelection bool               `json:"auto_selection"`
	Pinned        string             `json:"pinned"`
	Strategies    []StrategyResponse `json:"strategies"`
}
