package publish

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessagesAreSeparated(t *testing.T) {
	cause := errors.New("pq: connection reset by peer")
	err := Execution("immediate.publish", "c1", "", cause).WithStrategy(NameImmediate)

	assert.Contains(t, err.Error(), "connection reset")
	assert.Contains(t, err.Error(), "strategy=immediate")
	assert.Contains(t, err.Error(), "content=c1")
	assert.NotContains(t, err.UserMessage(), "connection reset")
	assert.Equal(t, "Publishing failed. Please try again later.", err.UserMessage())
}

func TestError_IsMatchesKindAndSentinel(t *testing.T) {
	err := fmt.Errorf("outer: %w", Validation("op", "c1", "nope", ErrBodyTooShort))

	assert.ErrorIs(t, err, ErrBodyTooShort)
	assert.ErrorIs(t, err, &Error{Kind: KindValidation})
	assert.NotErrorIs(t, err, &Error{Kind: KindExecution})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "nope", UserMessageOf(err))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindExecution, "op", "c1", "x"))

	raw := Wrap(errors.New("boom"), KindExecution, "op", "c1", "x")
	require.NotNil(t, raw)
	assert.Equal(t, KindExecution, raw.Kind)
	assert.Equal(t, "x", raw.Strategy)

	orig := Validation("op", "c1", "", ErrInvalidStatus)
	wrapped := Wrap(orig, KindExecution, "op2", "c2", "y")
	assert.Same(t, orig, wrapped)
	assert.Equal(t, KindValidation, wrapped.Kind)
	assert.Equal(t, "y", wrapped.Strategy)
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, "An unexpected error occurred.", UserMessageOf(errors.New("plain")))
	assert.Equal(t, "unknown", Kind(0).String())
	assert.Equal(t, "no_strategy", KindNoStrategy.String())
}
