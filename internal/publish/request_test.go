package publish

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/contentd/internal/content"
)

func TestRequest_Defaults(t *testing.T) {
	actor := content.Actor{ID: "u1", Role: content.RoleEditor}
	req := NewRequest(actor)

	assert.Equal(t, actor, req.Actor())
	assert.Equal(t, "production", req.Environment)
	assert.Equal(t, "web", req.Channel)
	assert.Equal(t, PriorityNormal, req.Priority)
	assert.True(t, req.Notify)
	assert.False(t, req.Force)
	assert.True(t, req.IsImmediate())
	assert.False(t, req.IsScheduled())
}

func TestRequest_ScheduledPredicatesAreComplementary(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   *time.Time
		want bool
	}{
		{"nil", nil, false},
		{"past", ptr(now.Add(-time.Minute)), false},
		{"now", ptr(now), false},
		{"future", ptr(now.Add(time.Minute)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest(content.Actor{ID: "u1"})
			req.ScheduledFor = tt.at
			assert.Equal(t, tt.want, req.IsScheduledAt(now))
		})
	}

	req := NewRequest(content.Actor{ID: "u1"}, WithScheduledFor(time.Now().Add(time.Hour)))
	assert.True(t, req.IsScheduled())
	assert.NotEqual(t, req.IsScheduled(), req.IsImmediate())
}

func TestRequest_Properties(t *testing.T) {
	req := NewRequest(content.Actor{ID: "u1"},
		WithProperty(PropBatchItems, " a, b,,c "),
		WithProperty(PropAutoPublish, "TRUE"),
		WithTags("news", "front"))

	assert.Equal(t, []string{"a", "b", "c"}, req.ListProperty(PropBatchItems))
	assert.True(t, req.BoolProperty(PropAutoPublish))
	assert.False(t, req.BoolProperty("missing"))
	assert.Nil(t, req.ListProperty("missing"))
	assert.Equal(t, []string{"front", "news"}, req.Tags())
	assert.True(t, req.HasTag("news"))

	props := req.Properties()
	props["injected"] = "x"
	_, ok := req.Property("injected")
	assert.False(t, ok)
}

func TestRequest_ConcurrentPropertyAccess(t *testing.T) {
	req := NewRequest(content.Actor{ID: "u1"})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			req.SetProperty("k", "v")
			req.AddTag("t")
		}()
		go func() {
			defer wg.Done()
			_, _ = req.Property("k")
			_ = req.HasTag("t")
		}()
	}
	wg.Wait()
	v, _ := req.Property("k")
	assert.Equal(t, "v", v)
}

func TestParsePriority(t *testing.T) {
	p, ok := ParsePriority("Emergency")
	assert.True(t, ok)
	assert.Equal(t, PriorityEmergency, p)

	p, ok = ParsePriority("")
	assert.True(t, ok)
	assert.Equal(t, PriorityNormal, p)

	_, ok = ParsePriority("urgent")
	assert.False(t, ok)
	assert.True(t, PriorityEmergency > PriorityHigh)
	assert.Equal(t, "priority(9)", Priority(9).String())
}

func ptr(t time.Time) *time.Time { return &t }
