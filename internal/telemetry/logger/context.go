package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey contextKey = "slotkeep.logger"
	slotKey   contextKey = "slotkeep.slot"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// WithSlot records the slot an operation works on.
func WithSlot(ctx context.Context, slotID string) context.Context {
	return context.WithValue(ctx, slotKey, slotID)
}

// SlotFromContext returns the slot recorded by WithSlot.
func SlotFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(slotKey).(string); ok {
		return id
	}
	return ""
}

// L returns the context logger enriched with the context's slot.
func L(ctx context.Context) *slog.Logger {
	l := FromContext(ctx)
	if id := SlotFromContext(ctx); id != "" {
		l = l.With("slot", id)
	}
	return l
}
