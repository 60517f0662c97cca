package observability

import (
	"context"

	"go.uber.org/zap"
)

// LoggerFromContext returns the request-scoped logger stored by the correlation middleware,
// or fallback when none is present.
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value("logger").(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

// CorrelationID returns the request correlation id, or "" outside a request.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value("correlation_id").(string); ok {
		return id
	}
	return ""
}
