package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps each record set as a single JSON document and rewrites the
// whole document on every mutation via temp-file-then-rename.
type FileBackend struct {
	dir  string
	mu   sync.Mutex
	sets map[string]map[string]json.RawMessage
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create data directory: %w", err)
	}
	return &FileBackend{dir: dir, sets: make(map[string]map[string]json.RawMessage)}, nil
}

func (b *FileBackend) path(set string) string {
	return filepath.Join(b.dir, set+".json")
}

func (b *FileBackend) Load(ctx context.Context, set string) (map[string][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.loadLocked(set)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(records))
	for k, v := range records {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (b *FileBackend) loadLocked(set string) (map[string]json.RawMessage, error) {
	if records, ok := b.sets[set]; ok {
		return records, nil
	}
	records := make(map[string]json.RawMessage)
	data, err := os.ReadFile(b.path(set))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("unable to read %s: %w", set, err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("unable to decode %s: %w", set, err)
		}
	}
	b.sets[set] = records
	return records, nil
}

func (b *FileBackend) Put(ctx context.Context, set string, records map[string][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.loadLocked(set)
	if err != nil {
		return err
	}
	next := make(map[string]json.RawMessage, len(current)+len(records))
	for k, v := range current {
		next[k] = v
	}
	for k, v := range records {
		next[k] = append(json.RawMessage(nil), v...)
	}
	if err := b.writeSnapshot(set, next); err != nil {
		return err
	}
	b.sets[set] = next
	return nil
}

func (b *FileBackend) Delete(ctx context.Context, set string, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.loadLocked(set)
	if err != nil {
		return err
	}
	if _, ok := current[key]; !ok {
		return nil
	}
	next := make(map[string]json.RawMessage, len(current))
	for k, v := range current {
		if k != key {
			next[k] = v
		}
	}
	if err := b.writeSnapshot(set, next); err != nil {
		return err
	}
	b.sets[set] = next
	return nil
}

func (b *FileBackend) writeSnapshot(set string, records map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("unable to encode %s: %w", set, err)
	}

	tmp, err := os.CreateTemp(b.dir, set+".*.tmp")
	if err != nil {
		return fmt.Errorf("unable to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("unable to write %s: %w", set, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("unable to sync %s: %w", set, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("unable to close %s: %w", set, err)
	}
	if err := os.Rename(tmpName, b.path(set)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("unable to replace %s: %w", set, err)
	}
	return nil
}

func (b *FileBackend) Close() error {
	return nil
}
