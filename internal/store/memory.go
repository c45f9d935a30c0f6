package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory RecordStore for tests and local mode. Its
// availability can be toggled to exercise offline queueing.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]Record
	byKey     map[string]string // idempotency key -> record id
	available bool
}

// NewMemoryStore creates an available in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]Record),
		byKey:     make(map[string]string),
		available: true,
	}
}

// SetAvailable flips the simulated reachability of the store.
func (s *MemoryStore) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = available
}

func (s *MemoryStore) checkAvailable() error {
	if !s.available {
		return ErrUnavailable
	}
	return nil
}

// Create stores a new record.
func (s *MemoryStore) Create(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAvailable(); err != nil {
		return Record{}, err
	}
	if rec.Collection == "" {
		return Record{}, &ValidationError{Code: "missing_collection", Message: "collection required"}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.records[rec.ID] = rec
	if rec.IdempotencyKey != "" {
		s.byKey[rec.IdempotencyKey] = rec.ID
	}
	return rec, nil
}

// Get returns a record by id, including soft-deleted ones.
func (s *MemoryStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAvailable(); err != nil {
		return Record{}, err
	}
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Update overwrites a record by id.
func (s *MemoryStore) Update(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAvailable(); err != nil {
		return err
	}
	if _, ok := s.records[rec.ID]; !ok {
		return ErrNotFound
	}
	s.records[rec.ID] = rec
	if rec.IdempotencyKey != "" {
		s.byKey[rec.IdempotencyKey] = rec.ID
	}
	return nil
}

// FindByKey looks a record up by idempotency key.
func (s *MemoryStore) FindByKey(ctx context.Context, idempotencyKey string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAvailable(); err != nil {
		return Record{}, false, err
	}
	id, ok := s.byKey[idempotencyKey]
	if !ok {
		return Record{}, false, nil
	}
	return s.records[id], true, nil
}

// Query lists records in a collection, newest first, excluding soft-deleted.
func (s *MemoryStore) Query(ctx context.Context, collection string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAvailable(); err != nil {
		return nil, err
	}
	recs := []Record{}
	for _, rec := range s.records {
		if rec.Collection == collection && !rec.Deleted() {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Count returns the number of records, soft-deleted included. Test helper.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ensure MemoryStore implements RecordStore.
var _ RecordStore = (*MemoryStore)(nil)
