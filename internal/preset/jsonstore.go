package preset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileName is the collection file inside a JSONStore directory.
const FileName = "formulas.json"

// JSONStore keeps a collection in a single JSON file.
//
// Every operation re-reads the file, so edits made by other tools are
// picked up. Operations on one JSONStore are serialized.
type JSONStore struct {
	mu   sync.Mutex
	dir  string
	path string
	opts options
}

// OpenJSON returns a JSONStore backed by dir/formulas.json, creating dir if
// needed. The file itself is created on first use.
func OpenJSON(dir string, opts ...Option) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open preset dir: %w", err)
	}
	return &JSONStore{
		dir:  dir,
		path: filepath.Join(dir, FileName),
		opts: buildOptions(opts),
	}, nil
}

// Path returns the collection file path.
func (s *JSONStore) Path() string { return s.path }

// Load implements Store.
func (s *JSONStore) Load(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

// Save implements Store.
func (s *JSONStore) Save(ctx context.Context, name, expr string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := newItem(name, expr, s.opts.ids, s.opts.clock)
	if err != nil {
		return Item{}, err
	}
	items, err := s.read(ctx)
	if err != nil {
		return Item{}, err
	}
	if err := s.write(ctx, append(items, it)); err != nil {
		return Item{}, err
	}
	return it, nil
}

// Delete implements Store.
func (s *JSONStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.read(ctx)
	if err != nil {
		return err
	}
	next := items[:0:0]
	for _, it := range items {
		if it.ID != id {
			next = append(next, it)
		}
	}
	if len(next) == len(items) {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	return s.write(ctx, next)
}

// Export implements Store.
func (s *JSONStore) Export(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return encodeFile(items)
}

// Import implements Store.
func (s *JSONStore) Import(ctx context.Context, data []byte) ([]Item, error) {
	f, err := decodeFile(data)
	if err != nil {
		return nil, fmt.Errorf("import presets: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	merged := merge(current, f.Items, s.opts.ids, s.opts.clock)
	if err := s.write(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Close implements Store. A JSONStore holds no resources.
func (s *JSONStore) Close() error { return nil }

// read loads the collection, initialising it when missing, blank or
// unreadable. A file with content that is not a valid collection is backed
// up before being replaced with the defaults.
func (s *JSONStore) read(ctx context.Context) ([]Item, error) {
	data, err := os.ReadFile(s.path)
	switch {
	case err != nil:
		if !errors.Is(err, os.ErrNotExist) {
			s.opts.logger.Warn("preset file unreadable, reinitialising", "path", s.path, "error", err)
		}
		return s.init(ctx)
	case strings.TrimSpace(string(data)) == "":
		return s.init(ctx)
	}

	f, err := decodeFile(data)
	if err != nil {
		s.opts.logger.Warn("preset file corrupt, reinitialising", "path", s.path, "error", err)
		s.backup(data)
		return s.init(ctx)
	}
	return f.Items, nil
}

func (s *JSONStore) init(ctx context.Context) ([]Item, error) {
	items := Defaults(s.opts.ids, s.opts.clock)
	if err := s.write(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// backup copies corrupt content next to the collection. Failures are logged
// and otherwise ignored.
func (s *JSONStore) backup(data []byte) {
	name := filepath.Join(s.dir, fmt.Sprintf("formulas_backup_%d.json", s.opts.clock.Now().UnixMilli()))
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		s.opts.logger.Warn("preset backup failed", "path", name, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		s.opts.logger.Warn("preset backup failed", "path", name, "error", err)
		return
	}
	s.opts.logger.Info("preset file backed up", "path", name)
}

// write replaces the collection file, retrying under the write policy.
func (s *JSONStore) write(ctx context.Context, items []Item) error {
	data, err := encodeFile(items)
	if err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	err = s.opts.write.Do(ctx, func(context.Context) error {
		return writeAtomic(s.path, data)
	})
	if err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	return nil
}

// writeAtomic writes data to a temporary file and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
var _ Store = (*JSONStore)(nil)
