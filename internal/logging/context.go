package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if actorID := ActorIDFromContext(ctx); actorID != "" {
		fields = append(fields, zap.String("actor.id", actorID))
	}
	if contentID := ContentIDFromContext(ctx); contentID != "" {
		fields = append(fields, zap.String("content.id", contentID))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type actorCtxKey struct{}
type contentCtxKey struct{}
type requestCtxKey struct{}

const maxIDLen = 128

// truncateID bounds caller-supplied identifiers before they reach log lines.
func truncateID(id string) string {
	if len(id) > maxIDLen {
		return id[:maxIDLen]
	}
	return id
}

// WithActorID adds the acting user's id to context.
func WithActorID(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorCtxKey{}, truncateID(actorID))
}

// ActorIDFromContext extracts the acting user's id from context.
func ActorIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(actorCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithContentID adds the content item id to context.
func WithContentID(ctx context.Context, contentID string) context.Context {
	if contentID == "" {
		return ctx
	}
	return context.WithValue(ctx, contentCtxKey{}, truncateID(contentID))
}

// ContentIDFromContext extracts the content item id from context.
func ContentIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(contentCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, truncateID(requestID))
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}
