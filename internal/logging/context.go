package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// CorrelationIDKey carries the per-request correlation ID through a context.
const CorrelationIDKey contextKey = "correlation_id"

// WithCorrelationID returns a context carrying the given correlation ID.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// GetCorrelationID returns the correlation ID stored on the context, or ""
// when none is set.
func GetCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(CorrelationIDKey).(string)
	return id
}

// GenerateCorrelationID mints an ID for requests that did not supply one.
func GenerateCorrelationID() string {
	return "req-" + uuid.NewString()
}

// MustGetCorrelationID returns the context's correlation ID, generating a
// fresh one when absent.
func MustGetCorrelationID(ctx context.Context) string {
	if id := GetCorrelationID(ctx); id != "" {
		return id
	}
	return GenerateCorrelationID()
}
