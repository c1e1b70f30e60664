package dedupe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const defaultSaveFile = ".submitted"

// FileStore keeps ids in a newline-separated text file. The file is read
// once on open and only appended to afterwards.
type FileStore struct {
	path string
	seen map[string]struct{}
	ids  []string
	// needsNewline is set when the file on disk does not end in '\n'.
	needsNewline bool
}

func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultSaveFile
	}
	store := &FileStore{path: path, seen: map[string]struct{}{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store, nil
		}
		return nil, fmt.Errorf("read save file: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		store.remember(strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan save file: %w", err)
	}
	store.needsNewline = len(data) > 0 && data[len(data)-1] != '\n'
	return store, nil
}

// Path returns the save file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) remember(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

func (s *FileStore) HasSeen(ctx context.Context, id string) (bool, error) {
	_ = ctx
	_, ok := s.seen[id]
	return ok, nil
}

func (s *FileStore) MarkSeen(ctx context.Context, id string) error {
	return s.MarkSeenBatch(ctx, []string{id})
}

func (s *FileStore) MarkSeenBatch(ctx context.Context, ids []string) error {
	_ = ctx
	fresh := make([]string, 0, len(ids))
	pending := map[string]struct{}{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := s.seen[id]; ok {
			continue
		}
		if _, ok := pending[id]; ok {
			continue
		}
		pending[id] = struct{}{}
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		return nil
	}

	var b strings.Builder
	if s.needsNewline {
		b.WriteByte('\n')
	}
	for _, id := range fresh {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	if err := s.appendString(b.String()); err != nil {
		return err
	}
	s.needsNewline = false
	for _, id := range fresh {
		s.remember(id)
	}
	return nil
}

func (s *FileStore) appendString(data string) error {
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create save file directory: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open save file: %w", err)
	}
	if _, err := f.WriteString(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("append save file: %w", err)
	}
	return f.Close()
}

func (s *FileStore) IDs(ctx context.Context) ([]string, error) {
	_ = ctx
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out, nil
}

func (s *FileStore) Close() error {
	return nil
}

var _ SeenStore = (*FileStore)(nil)
