package core

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestCycleIDRoundTrip(t *testing.T) {
	ctx := WithCycleID(context.Background(), "c-1")
	if got := CycleIDFromContext(ctx); got != "c-1" {
		t.Fatalf("cycle id = %q", got)
	}
	if got := CycleIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty cycle id, got %q", got)
	}
	if WithCycleID(ctx, "") != ctx {
		t.Fatalf("empty id must not wrap context")
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger")
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil)).With(slog.String("cycle_id", "c-2"))
	LoggerFromContext(WithLogger(context.Background(), logger)).Info("hello")
	if !strings.Contains(buf.String(), "cycle_id=c-2") {
		t.Fatalf("log output = %q", buf.String())
	}
}
