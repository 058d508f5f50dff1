package loggy

import (
	"context"

	"github.com/tildaslashalef/unitforge/internal/ulid"
)

type contextKey struct{}

// FromContext returns the logger carried by ctx, or the global logger
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(*Logger); ok && logger != nil {
			return logger
		}
	}
	return globalLogger
}

// WithLogger returns a copy of ctx carrying logger
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// WithRequestID returns a copy of ctx whose logger tags every record with requestID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if logger := FromContext(ctx); logger != nil {
		return WithLogger(ctx, logger.With("request_id", requestID))
	}
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// NewRequestID generates a new request ID
func NewRequestID() string {
	return ulid.RequestID()
}
