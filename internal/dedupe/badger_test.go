package dedupe

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
)

func TestBadgerStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seen.badger")
	store, err := Open(Config{Driver: DriverBadger, Path: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := store.MarkSeen(ctx, "x"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := store.MarkSeenBatch(ctx, []string{"y", "x", "z"}); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if seen, err := store.HasSeen(ctx, "y"); err != nil || !seen {
		t.Fatalf("expected y seen, got %v %v", seen, err)
	}
	if seen, err := store.HasSeen(ctx, "nope"); err != nil || seen {
		t.Fatalf("expected nope unseen, got %v %v", seen, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	ids, err := reopened.IDs(ctx)
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 3 || ids[0] != "x" || ids[1] != "y" || ids[2] != "z" {
		t.Fatalf("ids = %v", ids)
	}
}
