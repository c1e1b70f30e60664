package core

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger stores logger in ctx. Poll and submit steps read it back with
// LoggerFromContext so their lines carry the cycle's attributes.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// StartCycle tags ctx with cycleID and a child of base carrying cycle_id.
func StartCycle(ctx context.Context, base *slog.Logger, cycleID string) (context.Context, *slog.Logger) {
	if base == nil {
		base = slog.Default()
	}
	logger := base.With(slog.String("cycle_id", cycleID))
	return WithLogger(WithCycleID(ctx, cycleID), logger), logger
}
