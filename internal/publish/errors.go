package publish

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a publishing failure.
type Kind int

const (
	// KindValidation means a precondition was not met. Never retried
	// automatically, but the orchestrator may substitute its fallback.
	KindValidation Kind = iota + 1
	// KindExecution means a strategy's side-effecting step failed.
	KindExecution
	// KindDeferred means a scheduled task failed after the caller returned.
	KindDeferred
	// KindNoStrategy means no usable strategy could be resolved.
	KindNoStrategy
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindExecution:
		return "execution"
	case KindDeferred:
		return "deferred"
	case KindNoStrategy:
		return "no_strategy"
	default:
		return "unknown"
	}
}

// Sentinel causes shared across strategies.
var (
	ErrNilArgument        = errors.New("required argument is nil")
	ErrMissingField       = errors.New("required content field is empty")
	ErrInsufficientRole   = errors.New("actor role is not permitted")
	ErrInvalidStatus      = errors.New("content status does not allow this operation")
	ErrBodyTooShort       = errors.New("content body is below the minimum length")
	ErrQualityGate        = errors.New("content failed an automatic quality gate")
	ErrAutoPublishOff     = errors.New("auto publishing not enabled for request")
	ErrMissingBatchItems  = errors.New("batch request carries no items")
	ErrBatchItemsNotFound = errors.New("batch item not found")
	ErrRollbackNotAllowed = errors.New("content is not published")
)

// Error is the single shielded error type returned by every public publishing
// operation. Error() is the technical message for logs; UserMessage() is the
// short actionable text safe to show callers.
type Error struct {
	Kind        Kind
	Op          string
	ContentID   string
	Strategy    string
	userMessage string
	Err         error
}

// Error returns the technical message.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Strategy != "" {
		fmt.Fprintf(&b, " [strategy=%s]", e.Strategy)
	}
	if e.ContentID != "" {
		fmt.Fprintf(&b, " [content=%s]", e.ContentID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// UserMessage returns the message safe to show to the requesting user.
func (e *Error) UserMessage() string {
	if e.userMessage != "" {
		return e.userMessage
	}
	switch e.Kind {
	case KindValidation:
		return "The content cannot be published as requested."
	case KindNoStrategy:
		return "Publishing is not available right now."
	default:
		return "Publishing failed. Please try again later."
	}
}

// Unwrap exposes the cause so errors.Is matches sentinels.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind when the target carries only a Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.ContentID == "" && t.Strategy == "" && t.Err == nil && t.Kind == e.Kind
}

func newError(kind Kind, op, contentID, userMsg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, ContentID: contentID, userMessage: userMsg, Err: cause}
}

// Validation builds a KindValidation error.
func Validation(op, contentID, userMsg string, cause error) *Error {
	return newError(KindValidation, op, contentID, userMsg, cause)
}

// Execution builds a KindExecution error.
func Execution(op, contentID, userMsg string, cause error) *Error {
	return newError(KindExecution, op, contentID, userMsg, cause)
}

// Deferred builds a KindDeferred error.
func Deferred(op, contentID string, cause error) *Error {
	return newError(KindDeferred, op, contentID, "", cause)
}

// NoStrategy builds a KindNoStrategy error.
func NoStrategy(op, contentID string, cause error) *Error {
	return newError(KindNoStrategy, op, contentID, "", cause)
}

// WithStrategy records the strategy that produced e and returns e.
func (e *Error) WithStrategy(name string) *Error {
	if e.Strategy == "" {
		e.Strategy = name
	}
	return e
}

// Wrap converts any error into *Error. Existing *Error values are returned
// as-is (with the strategy filled in); anything else becomes kind.
func Wrap(err error, kind Kind, op, contentID, strategy string) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.WithStrategy(strategy)
	}
	return newError(kind, op, contentID, "", err).WithStrategy(strategy)
}

// tag fills in the strategy on err when it is an *Error.
func tag(err error, strategy string) error {
	var pe *Error
	if errors.As(err, &pe) {
		pe.WithStrategy(strategy)
	}
	return err
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// UserMessageOf returns the shielded message for any error.
func UserMessageOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.UserMessage()
	}
	return "An unexpected error occurred."
}
