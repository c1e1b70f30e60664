package copier

import (
	"context"
	"fmt"

	"github.com/bakkerme/selfpost-copier/internal/dedupe"
)

// SeenSet is the in-memory set of copied ids, backed by a durable store.
// An id is added at most once. Ids whose write has not reached the store
// yet (deferred mode, or a failed write) stay pending until Flush.
type SeenSet struct {
	store    dedupe.SeenStore
	ids      map[string]struct{}
	pending  []string
	deferred bool
}

// LoadSeenSet reads every id from store. With deferred set, Record only
// updates memory and Flush writes the batch.
func LoadSeenSet(ctx context.Context, store dedupe.SeenStore, deferred bool) (*SeenSet, error) {
	if store == nil {
		return nil, fmt.Errorf("seen store is required")
	}
	ids, err := store.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seen ids: %w", err)
	}
	set := &SeenSet{
		store:    store,
		ids:      make(map[string]struct{}, len(ids)),
		deferred: deferred,
	}
	for _, id := range ids {
		set.ids[id] = struct{}{}
	}
	return set, nil
}

func (s *SeenSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *SeenSet) Len() int {
	return len(s.ids)
}

// Pending returns ids recorded in memory but not yet persisted.
func (s *SeenSet) Pending() []string {
	out := make([]string, len(s.pending))
	copy(out, s.pending)
	return out
}

// Record adds id to the set and, unless deferred, persists it. The id is in
// the set even when the returned *dedupe.PersistenceError is non-nil.
func (s *SeenSet) Record(ctx context.Context, id string) error {
	if id == "" || s.Contains(id) {
		return nil
	}
	s.ids[id] = struct{}{}
	if s.deferred {
		s.pending = append(s.pending, id)
		return nil
	}
	if err := s.store.MarkSeen(ctx, id); err != nil {
		s.pending = append(s.pending, id)
		return &dedupe.PersistenceError{IDs: []string{id}, Err: err}
	}
	return nil
}

// Flush writes every pending id to the store.
func (s *SeenSet) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.store.MarkSeenBatch(ctx, s.pending); err != nil {
		return &dedupe.PersistenceError{IDs: s.Pending(), Err: err}
	}
	s.pending = nil
	return nil
}
