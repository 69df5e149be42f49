package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestWithLogger_FromContext(t *testing.T) {
	l, buf := newBuffered(t, Config{Level: "info", Format: "json"})
	ctx := WithLogger(context.Background(), l)
	FromContext(ctx).Info("test message")
	if buf.Len() == 0 {
		t.Error("logger from context should produce output")
	}
}

func TestFromContext_Default(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("FromContext should fall back to slog.Default()")
	}
}

func TestL_WithSlot(t *testing.T) {
	l, buf := newBuffered(t, Config{Level: "info", Format: "json"})
	ctx := WithSlot(WithLogger(context.Background(), l), "slot-3")
	if SlotFromContext(ctx) != "slot-3" {
		t.Fatalf("SlotFromContext = %q", SlotFromContext(ctx))
	}
	L(ctx).Info("loaded")
	if got := decode(t, buf)["slot"]; got != "slot-3" {
		t.Errorf("slot = %v, want slot-3", got)
	}
}
