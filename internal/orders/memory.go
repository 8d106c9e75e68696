package orders

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/StepIgor/otus-final/internal/memtx"
)

type MemoryStore struct {
	tx     memtx.Guard
	mu     sync.RWMutex
	orders map[string]Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: map[string]Order{}}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.Do(ctx, func() func() {
		s.mu.Lock()
		saved := maps.Clone(s.orders)
		s.mu.Unlock()
		return func() {
			s.mu.Lock()
			s.orders = saved
			s.mu.Unlock()
		}
	}, fn)
}

func (s *MemoryStore) Create(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrDuplicateOrder
	}
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = o
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

// GetForUpdate needs no row lock: transactions on the memory store already run one at a time.
func (s *MemoryStore) GetForUpdate(ctx context.Context, id string) (Order, error) {
	return s.Get(ctx, id)
}

func (s *MemoryStore) Update(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return ErrOrderNotFound
	}
	s.orders[o.ID] = o
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
