package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a simple in-memory call store for tests and early
// development. It mirrors PostgresStore timestamp behavior.

type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]Call
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]Call{}, clock: time.Now}
}

func (s *MemoryStore) Insert(ctx context.Context, c *Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.byID[c.ID] = *c
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, c *Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; !ok {
		return ErrNotFound
	}
	c.UpdatedAt = s.clock().UTC()
	s.byID[c.ID] = *c
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetByProviderCallID(ctx context.Context, providerCallID string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if providerCallID == "" {
		return Call{}, ErrNotFound
	}
	for _, c := range s.byID {
		if c.ProviderCallID == providerCallID {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (s *MemoryStore) List(ctx context.Context) ([]Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.byID))
	s.byID = map[string]Call{}
	return n, nil
}
