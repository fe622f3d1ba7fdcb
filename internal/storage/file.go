package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	SightingsFile = "sightings.json"
	TrackedFile   = "tracked.json"
)

// FileBackend keeps each store in its own JSON document, keyed by contract id
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) LoadSightings(ctx context.Context) (map[string]*ContractRecord, error) {
	path := filepath.Join(b.dir, SightingsFile)
	records := make(map[string]*ContractRecord)
	if err := readJSON(path, &records); err != nil {
		return nil, err
	}
	if err := validateSightings(path, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (b *FileBackend) SaveSightings(ctx context.Context, records map[string]*ContractRecord) error {
	return writeJSONAtomic(filepath.Join(b.dir, SightingsFile), records)
}

func (b *FileBackend) LoadTracked(ctx context.Context) (map[string]*TrackedToken, error) {
	path := filepath.Join(b.dir, TrackedFile)
	records := make(map[string]*TrackedToken)
	if err := readJSON(path, &records); err != nil {
		return nil, err
	}
	if err := validateTracked(path, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (b *FileBackend) SaveTracked(ctx context.Context, records map[string]*TrackedToken) error {
	return writeJSONAtomic(filepath.Join(b.dir, TrackedFile), records)
}

func (b *FileBackend) Close() error {
	return nil
}

// readJSON leaves v untouched when the file does not exist yet
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorruptStore, path, err)
	}
	return nil
}

// writeJSONAtomic writes to a temp file in the same directory, syncs it and
// renames it over path, so readers see either the old or the new snapshot.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
