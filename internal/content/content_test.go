package content

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusDraft, StatusReview, true},
		{StatusDraft, StatusPublished, true},
		{StatusReview, StatusPublished, true},
		{StatusReview, StatusDraft, true},
		{StatusPublished, StatusDraft, true},
		{StatusPublished, StatusReview, false},
		{StatusPublished, StatusPublished, false},
		{StatusArchived, StatusPublished, false},
		{Status("bogus"), StatusDraft, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestRole_Ordering(t *testing.T) {
	assert.True(t, RoleAdministrator.AtLeast(RoleEditor))
	assert.True(t, RoleEditor.AtLeast(RoleEditor))
	assert.False(t, RoleAuthor.AtLeast(RoleEditor))
	assert.False(t, RoleGuest.AtLeast(RoleAuthor))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Publisher ")
	require.NoError(t, err)
	assert.Equal(t, RolePublisher, r)

	r, err = ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdministrator, r)

	_, err = ParseRole("overlord")
	assert.ErrorIs(t, err, ErrUnknownRole)

	var role Role
	require.NoError(t, role.UnmarshalText([]byte("editor")))
	assert.Equal(t, RoleEditor, role)
	text, err := role.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "editor", string(text))
}

func TestArticle_SetStatus(t *testing.T) {
	a := NewArticle("a1", "Title", "Body")
	assert.Equal(t, StatusDraft, a.Status())

	require.NoError(t, a.SetStatus(StatusPublished))
	err := a.SetStatus(StatusReview)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusPublished, a.Status())
}

func TestArticle_ScheduleMarker(t *testing.T) {
	a := NewArticle("a1", "Title", "Body")
	_, ok := a.ScheduledFor()
	assert.False(t, ok)

	at := time.Now().Add(time.Hour)
	a.MarkScheduled(at)
	got, ok := a.ScheduledFor()
	require.True(t, ok)
	assert.True(t, at.Equal(got))
	assert.Equal(t, StatusDraft, a.Status(), "schedule marker must not change status")

	a.ClearSchedule()
	_, ok = a.ScheduledFor()
	assert.False(t, ok)
}

func TestArticle_Snapshot(t *testing.T) {
	a := NewArticle("a1", "Title", "Body").WithCategory("news").WithAuthor("u1")
	a.SetMetadata("k", "v")
	now := time.Now()
	a.SetPublishedAt(now)

	s := a.Snapshot()
	assert.Equal(t, "a1", s.ID)
	assert.Equal(t, "news", s.Category)
	assert.Equal(t, "u1", s.ModifiedBy)
	require.NotNil(t, s.PublishedAt)
	assert.True(t, now.Equal(*s.PublishedAt))

	s.Metadata["k"] = "changed"
	v, _ := a.Metadata("k")
	assert.Equal(t, "v", v, "snapshot must be a copy")
}

func TestArticle_ConcurrentAccess(t *testing.T) {
	a := NewArticle("a1", "Title", "Body")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Touch("u", time.Now())
			a.SetMetadata("k", "v")
			_ = a.Status()
			_, _ = a.LastModified()
		}()
	}
	wg.Wait()
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.Save(ctx, NewArticle("b", "B", "body").WithCategory("news")))
	require.NoError(t, repo.Save(ctx, NewArticle("a", "A", "body").WithCategory("news")))
	require.NoError(t, repo.Save(ctx, NewArticle("c", "C", "body").WithCategory("blog")))

	item, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", item.Title())

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID())

	news, err := repo.ListByCategory(ctx, "news")
	require.NoError(t, err)
	assert.Len(t, news, 2)

	// Re-saving under a new category moves the index entry.
	require.NoError(t, repo.Save(ctx, NewArticle("a", "A", "body").WithCategory("blog")))
	news, _ = repo.ListByCategory(ctx, "news")
	assert.Len(t, news, 1)

	require.NoError(t, repo.Delete(ctx, "b"))
	assert.ErrorIs(t, repo.Delete(ctx, "b"), ErrNotFound)
	news, _ = repo.ListByCategory(ctx, "news")
	assert.Empty(t, news)

	assert.ErrorIs(t, repo.Save(ctx, NewArticle("", "x", "y")), ErrEmptyID)
}
