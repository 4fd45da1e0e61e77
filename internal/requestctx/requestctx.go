// Package requestctx carries per-request identifiers below the HTTP layer so
// domain code can tag its logs without importing transport packages.
package requestctx

import (
	"context"
	"log/slog"
)

type key int

const (
	requestIDKey key = iota
	actorKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithActor records the authenticated user for log correlation.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey, userID)
}

func Actor(ctx context.Context) string {
	value, _ := ctx.Value(actorKey).(string)
	return value
}

// Logger returns the default logger tagged with whatever identifiers ctx holds.
func Logger(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if id := RequestID(ctx); id != "" {
		logger = logger.With("requestId", id)
	}
	if actor := Actor(ctx); actor != "" {
		logger = logger.With("actorId", actor)
	}
	return logger
}
