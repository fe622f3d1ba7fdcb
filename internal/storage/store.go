package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrCorruptStore is returned when a persisted snapshot cannot be decoded or
// violates record invariants. Callers must refuse to start rather than
// continue with an empty store.
var ErrCorruptStore = errors.New("corrupt store")

// SightingStore holds contract records. Implementations are owned by a single
// goroutine and are not safe for concurrent use.
type SightingStore interface {
	Get(contractID string) (*ContractRecord, bool)
	Upsert(rec *ContractRecord)
	Delete(contractID string)
	Snapshot() map[string]*ContractRecord
	Len() int
}

// TrackerStore holds tracked-token records, with the same ownership rules as
// SightingStore.
type TrackerStore interface {
	Get(contractID string) (*TrackedToken, bool)
	Upsert(rec *TrackedToken)
	Delete(contractID string)
	Snapshot() map[string]*TrackedToken
	Len() int
}

// Backend persists whole-store snapshots
type Backend interface {
	LoadSightings(ctx context.Context) (map[string]*ContractRecord, error)
	SaveSightings(ctx context.Context, records map[string]*ContractRecord) error
	LoadTracked(ctx context.Context) (map[string]*TrackedToken, error)
	SaveTracked(ctx context.Context, records map[string]*TrackedToken) error
	Close() error
}

// MemorySightings is the in-process SightingStore. Records are copied on the
// way in and out so callers never alias stored state.
type MemorySightings struct {
	records map[string]*ContractRecord
}

// NewMemorySightings seeds the store, typically from Backend.LoadSightings
func NewMemorySightings(seed map[string]*ContractRecord) *MemorySightings {
	s := &MemorySightings{records: make(map[string]*ContractRecord, len(seed))}
	for id, rec := range seed {
		s.records[id] = rec.Clone()
	}
	return s
}

func (s *MemorySightings) Get(contractID string) (*ContractRecord, bool) {
	rec, ok := s.records[contractID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (s *MemorySightings) Upsert(rec *ContractRecord) {
	s.records[rec.ContractID] = rec.Clone()
}

func (s *MemorySightings) Delete(contractID string) {
	delete(s.records, contractID)
}

func (s *MemorySightings) Snapshot() map[string]*ContractRecord {
	out := make(map[string]*ContractRecord, len(s.records))
	for id, rec := range s.records {
		out[id] = rec.Clone()
	}
	return out
}

func (s *MemorySightings) Len() int {
	return len(s.records)
}

// MemoryTracked is the in-process TrackerStore
type MemoryTracked struct {
	records map[string]*TrackedToken
}

// NewMemoryTracked seeds the store, typically from Backend.LoadTracked
func NewMemoryTracked(seed map[string]*TrackedToken) *MemoryTracked {
	s := &MemoryTracked{records: make(map[string]*TrackedToken, len(seed))}
	for id, rec := range seed {
		s.records[id] = rec.Clone()
	}
	return s
}

func (s *MemoryTracked) Get(contractID string) (*TrackedToken, bool) {
	rec, ok := s.records[contractID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (s *MemoryTracked) Upsert(rec *TrackedToken) {
	s.records[rec.ContractID] = rec.Clone()
}

func (s *MemoryTracked) Delete(contractID string) {
	delete(s.records, contractID)
}

func (s *MemoryTracked) Snapshot() map[string]*TrackedToken {
	out := make(map[string]*TrackedToken, len(s.records))
	for id, rec := range s.records {
		out[id] = rec.Clone()
	}
	return out
}

func (s *MemoryTracked) Len() int {
	return len(s.records)
}

// SortedIDs returns the keys of a snapshot in lexical order
func SortedIDs[T any](m map[string]T) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func validateSightings(origin string, records map[string]*ContractRecord) error {
	for key, rec := range records {
		if rec == nil {
			return fmt.Errorf("%w: %s: record %s is null", ErrCorruptStore, origin, key)
		}
		if rec.ContractID != key {
			return fmt.Errorf("%w: %s: key %s holds contract %s", ErrCorruptStore, origin, key, rec.ContractID)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCorruptStore, origin, err)
		}
	}
	return nil
}

func validateTracked(origin string, records map[string]*TrackedToken) error {
	for key, rec := range records {
		if rec == nil {
			return fmt.Errorf("%w: %s: record %s is null", ErrCorruptStore, origin, key)
		}
		if rec.ContractID != key {
			return fmt.Errorf("%w: %s: key %s holds contract %s", ErrCorruptStore, origin, key, rec.ContractID)
		}
		rec.Normalize()
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCorruptStore, origin, err)
		}
	}
	return nil
}
