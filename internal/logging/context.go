package logging

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithRequest returns ctx carrying a logger that tags every line with the
// request id.
func WithRequest(ctx context.Context, base *slog.Logger, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, base.With("request_id", requestID))
}

// FromContext returns the request-scoped logger, or fallback outside a request.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}
