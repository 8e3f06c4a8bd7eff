package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore keeps records in a map. It is the reference RecordStore used by
// tests and by the demo when no database path is given.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]Record
}

var _ RecordStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recs: make(map[string]Record),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		return Record{}, errors.New("record id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recs[rec.ID]; exists {
		return Record{}, errors.Errorf("record %s already exists", rec.ID)
	}
	s.recs[rec.ID] = rec
	return rec, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, exists := s.recs[id]
	if !exists {
		return Record{}, errors.Wrap(ErrNotFound, id)
	}
	return rec, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, upd Update) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.recs[id]
	if !exists {
		return Record{}, errors.Wrap(ErrNotFound, id)
	}
	upd.Apply(&rec)
	s.recs[id] = rec
	return rec, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}
