// Package requestcontext provides transport-independent context accessors for
// request-scoped values.
//
// Values are set by the embedding application (middleware, job runners) and
// consumed by services. Keeping this package free of net/http lets the ledger
// core stay a pure library.
//
// Usage in services (read values):
//
//	now := requestcontext.Now(ctx)
//	requestID := requestcontext.RequestID(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithRequestID attaches a correlation ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the correlation ID, or "" when none is set.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithTime pins the request clock. Tests use this to make emission timestamps
// and digests deterministic.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time, falling back to time.Now().
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return v
	}
	return time.Now()
}
