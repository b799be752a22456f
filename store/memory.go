package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory WorkflowStore. Records are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*Record), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if _, exists := s.records[r.ID]; exists {
		return ErrDuplicate
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	cp := *r
	s.records[r.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, f ListFilter) ([]*Record, error) {
	s.mu.RLock()
	var out []*Record
	for _, r := range s.records {
		if !matches(r, f) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Pagination.Offset >= len(out) {
		return []*Record{}, nil
	}
	if f.Pagination.Offset > 0 {
		out = out[f.Pagination.Offset:]
	}
	if limit := limitOrDefault(f.Pagination); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context, f ListFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if matches(r, f) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}
