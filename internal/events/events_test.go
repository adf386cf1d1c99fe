package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/contentd/internal/logging"
)

func TestNew(t *testing.T) {
	e := New(TypePublished, "c1", MetaStrategy, "immediate", MetaActor, "u1", "dangling")

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, TypePublished, e.Type)
	assert.Equal(t, "c1", e.ContentID)
	assert.False(t, e.OccurredAt.IsZero())
	assert.Equal(t, map[string]string{MetaStrategy: "immediate", MetaActor: "u1"}, e.Metadata)

	other := New(TypePublished, "c1")
	assert.NotEqual(t, e.ID, other.ID)
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	require.NoError(t, sink.Notify(ctx, New(TypeScheduled, "a")))
	require.NoError(t, sink.Notify(ctx, New(TypePublished, "a")))

	assert.Equal(t, []Type{TypeScheduled, TypePublished}, sink.Types())
	assert.Len(t, sink.OfType(TypePublished), 1)

	boom := errors.New("boom")
	sink.FailWith(boom)
	assert.ErrorIs(t, sink.Notify(ctx, New(TypeError, "a")), boom)
	assert.Len(t, sink.Events(), 3, "failed notifications are still recorded")

	sink.Reset()
	assert.Empty(t, sink.Events())
}

func TestEmit_LogsFailureWithoutPropagating(t *testing.T) {
	tl := logging.NewTestLogger()
	sink := NewMemorySink()
	sink.FailWith(errors.New("broker down"))

	Emit(context.Background(), sink, tl.Logger, New(TypePublished, "c1"))

	tl.AssertLogged(t, zapcore.WarnLevel, "event delivery failed")
	tl.AssertField(t, "event delivery failed", "event.type", "published")

	// nil sink and nil logger are tolerated
	Emit(context.Background(), nil, nil, New(TypePublished, "c1"))
	Emit(context.Background(), sink, nil, New(TypePublished, "c1"))
}

func TestFanout(t *testing.T) {
	a := NewMemorySink()
	b := NewMemorySink()
	b.FailWith(errors.New("b failed"))
	c := NewMemorySink()

	err := Fanout{a, b, nil, c}.Notify(context.Background(), New(TypeReviewed, "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b failed")
	assert.Len(t, a.Events(), 1)
	assert.Len(t, c.Events(), 1, "later sinks still receive the event")
}

func TestLogSink(t *testing.T) {
	tl := logging.NewTestLogger()
	sink := NewLogSink(tl.Logger)

	require.NoError(t, sink.Notify(context.Background(), New(TypeRejected, "c2", MetaReviewer, "r1")))

	tl.AssertLogged(t, zapcore.InfoLevel, "publishing event")
	tl.AssertField(t, "publishing event", "event.type", "rejected")
	tl.AssertField(t, "publishing event", "meta.reviewer", "r1")
}

func TestDiscardAndSinkFunc(t *testing.T) {
	assert.NoError(t, Discard.Notify(context.Background(), New(TypeError, "x")))

	var got Event
	f := SinkFunc(func(_ context.Context, e Event) error { got = e; return nil })
	require.NoError(t, f.Notify(context.Background(), New(TypeScheduled, "y")))
	assert.Equal(t, "y", got.ContentID)
}
