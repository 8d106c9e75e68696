package ledger

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/StepIgor/otus-final/internal/memtx"
)

type MemoryStore struct {
	tx        memtx.Guard
	mu        sync.RWMutex
	entries   []Entry
	decisions map[string]Decision
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{decisions: map[string]Decision{}}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.Do(ctx, func() func() {
		s.mu.Lock()
		entries, decisions := slices.Clone(s.entries), maps.Clone(s.decisions)
		s.mu.Unlock()
		return func() {
			s.mu.Lock()
			s.entries, s.decisions = entries, decisions
			s.mu.Unlock()
		}
	}, fn)
}

func (s *MemoryStore) LockUser(context.Context, string) error { return nil }

func (s *MemoryStore) Entry(_ context.Context, id string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (s *MemoryStore) Decided(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.decisions[key]
	return ok, nil
}

func (s *MemoryStore) RecordDecision(_ context.Context, d Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decisions[d.Key]; !ok {
		d.CreatedAt = time.Now().UTC()
		s.decisions[d.Key] = d
	}
	return nil
}

func (s *MemoryStore) Balance(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, e := range s.entries {
		if e.UserID == userID {
			total += e.Signed()
		}
	}
	return total, nil
}

func (s *MemoryStore) Insert(_ context.Context, e Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.entries {
		if cur.ID == e.ID || (e.OrderID != "" && cur.OrderID == e.OrderID && cur.Type == e.Type) {
			return false, nil
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, e)
	return true, nil
}

func (s *MemoryStore) FindByOrder(_ context.Context, orderID string, t EntryType) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.OrderID == orderID && e.Type == t {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (s *MemoryStore) Entries(_ context.Context, userID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
