package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEntryNotFound is returned by Store.Lookup when no entry exists for a
// fingerprint.
var ErrEntryNotFound = errors.New("cache entry not found")

// OutputValue is one recorded output of a completed task, replayed onto the
// declared output channel on a cache hit.
type OutputValue struct {
	Name  string
	Class string

	// Value holds the scalar result for val/stdout outputs.
	Value any

	// Files holds the absolute paths of matched output files.
	Files []string
}

// InputDescriptor is the serialized representation of one bound input,
// persisted alongside the entry for inspection and debugging.
type InputDescriptor struct {
	Name  string
	Class string
	Repr  string
}

// Entry maps a fingerprint to everything needed to skip execution: the
// recorded outputs, the exit status, and the captured stdout. Entries are
// created on first successful completion and are read-only afterwards until
// invalidated.
type Entry struct {
	Fingerprint string
	Process     string
	Script      string
	Inputs      []InputDescriptor
	Outputs     []OutputValue
	ExitStatus  int
	Stdout      string
	CreatedAt   time.Time
}

// Store is the cache entry store. Implementations must support concurrent
// lookup and insert without lost updates.
type Store interface {
	// Lookup returns the entry recorded for fingerprint, or ErrEntryNotFound.
	Lookup(ctx context.Context, fingerprint string) (*Entry, error)

	// Insert records an entry. Inserting an existing fingerprint replaces
	// the previous entry.
	Insert(ctx context.Context, e *Entry) error

	// Invalidate removes the entry for fingerprint. Removing a missing
	// entry is not an error.
	Invalidate(ctx context.Context, fingerprint string) error
}

// MemoryStore is a Store backed by a map. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Lookup(ctx context.Context, fingerprint string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[fingerprint]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) Insert(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.entries[cp.Fingerprint] = &cp
	return nil
}

func (s *MemoryStore) Invalidate(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fingerprint)
	return nil
}

// Len returns the number of entries in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
