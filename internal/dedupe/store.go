package dedupe

import (
	"context"
	"fmt"
)

// SeenStore is the durable record of submission ids that have already been
// copied. Ids are only ever added.
type SeenStore interface {
	HasSeen(ctx context.Context, id string) (bool, error)
	MarkSeen(ctx context.Context, id string) error
	MarkSeenBatch(ctx context.Context, ids []string) error
	// IDs returns every recorded id, each once.
	IDs(ctx context.Context) ([]string, error)
	Close() error
}

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

type Config struct {
	Driver string
	// Path is the save file, the sqlite dsn or the badger directory.
	Path string
	// Table only applies to sqlite.
	Table string
}

// Open returns the store selected by cfg.Driver.
func Open(cfg Config) (SeenStore, error) {
	switch cfg.Driver {
	case "", DriverFile:
		return NewFileStore(cfg.Path)
	case DriverSQLite:
		return NewSQLiteStore(cfg.Path, cfg.Table)
	case DriverBadger:
		return NewBadgerStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown seen store driver %q (expected file, sqlite or badger)", cfg.Driver)
	}
}

// PersistenceError reports ids that could not be written to the store.
type PersistenceError struct {
	IDs []string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %d seen id(s): %v", len(e.IDs), e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
