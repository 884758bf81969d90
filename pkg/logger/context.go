package logger

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// echoKey is where request middleware stores the request-scoped logger in echo.Context.
const echoKey = "logger"

type ctxKey struct{}

// FromContext returns the request-scoped logger carried by ctx, or the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	return FromContextOr(ctx, GetLogger())
}

// FromContextOr returns the request-scoped logger carried by ctx, or fallback.
// Components built with their own logger use it so request_id and user_id reach their lines.
func FromContextOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return fallback
}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// SetEcho stores l as the request logger for c and for c's request context.
func SetEcho(c echo.Context, l *zap.Logger) {
	c.Set(echoKey, l)
	c.SetRequest(c.Request().WithContext(WithContext(c.Request().Context(), l)))
}

// FromEcho returns the request logger stored by SetEcho, or the global logger.
func FromEcho(c echo.Context) *zap.Logger {
	if l, ok := c.Get(echoKey).(*zap.Logger); ok {
		return l
	}
	return FromContext(c.Request().Context())
}
