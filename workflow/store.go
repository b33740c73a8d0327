// ABOUTME: Record store contract and the default in-memory implementation.
// ABOUTME: Stores hold whole records; callers read-modify-write, the store never merges.
package workflow

import (
	"sort"
	"sync"
)

// Store is keyed storage of workflow records, the single source of truth.
// Get and List return deep copies; mutations go through Replace with a whole
// record. Stores perform no validation or merging.
type Store interface {
	Create(goal, locator string) (*Record, error)
	Get(id string) (*Record, error)
	Replace(id string, rec *Record) error
	Delete(id string) error
	Clear() error
	List() ([]*Record, error)
}

// MemoryStore is the default Store: a mutex-guarded map. Records are copied
// on the way in and out so callers never share memory with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Create allocates a new record at the discovery stage and stores it.
func (s *MemoryStore) Create(goal, locator string) (*Record, error) {
	rec := NewRecord(goal, locator)
	s.mu.Lock()
	s.records[rec.ID.String()] = rec.Clone()
	s.mu.Unlock()
	return rec, nil
}

// Get returns a copy of the record, or ErrNotFound.
func (s *MemoryStore) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Replace swaps the stored record for the given id. The id must already exist.
func (s *MemoryStore) Replace(id string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	s.records[id] = rec.Clone()
	return nil
}

// Delete removes the record, or returns ErrNotFound.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// Clear removes all records.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record)
	return nil
}

// List returns copies of all records ordered by id (ULIDs sort by creation time).
func (s *MemoryStore) List() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}
