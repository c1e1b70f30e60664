package core

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestStartCycleTagsContextAndLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx, logger := StartCycle(context.Background(), base, "c-3")
	if got := CycleIDFromContext(ctx); got != "c-3" {
		t.Fatalf("cycle id = %q", got)
	}
	if LoggerFromContext(ctx) != logger {
		t.Fatalf("context logger differs from returned logger")
	}
	LoggerFromContext(ctx).Info("polling")
	if !strings.Contains(buf.String(), "cycle_id=c-3") {
		t.Fatalf("log output = %q", buf.String())
	}
}
