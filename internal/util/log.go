package util

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const ctxKeyDisableLogger contextKey = "disable_logger"

// LogFromContext returns an operation specific zerolog instance using the
// provided context. If no logger is associated with ctx, the global logger
// is returned, so this function always returns a valid (enabled) logger.
// Use DisableLogger to force a disabled logger for a context.
func LogFromContext(ctx context.Context) *zerolog.Logger {
	l := log.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		if ShouldDisableLogger(ctx) {
			return l
		}
		l = &log.Logger
	}

	return l
}

// WithLogger attaches l to ctx for LogFromContext.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// DisableLogger toggles the logger returned by LogFromContext for ctx.
func DisableLogger(ctx context.Context, shouldDisable bool) context.Context {
	return context.WithValue(ctx, ctxKeyDisableLogger, shouldDisable)
}

// ShouldDisableLogger reports whether DisableLogger was set on ctx.
func ShouldDisableLogger(ctx context.Context) bool {
	s, ok := ctx.Value(ctxKeyDisableLogger).(bool)
	if !ok {
		return false
	}

	return s
}
