package library

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/StepIgor/otus-final/internal/memtx"
)

type MemoryStore struct {
	tx   memtx.Guard
	mu   sync.RWMutex
	rows []Entitlement
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.Do(ctx, func() func() {
		s.mu.Lock()
		saved := slices.Clone(s.rows)
		s.mu.Unlock()
		return func() {
			s.mu.Lock()
			s.rows = saved
			s.mu.Unlock()
		}
	}, fn)
}

func (s *MemoryStore) Exists(_ context.Context, userID, productID, licenseID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(userID, productID, licenseID), nil
}

func (s *MemoryStore) Grant(_ context.Context, e Entitlement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(e.UserID, e.ProductID, e.LicenseID) {
		return false, nil
	}
	e.CreatedAt = time.Now().UTC()
	s.rows = append(s.rows, e)
	return true, nil
}

func (s *MemoryStore) List(_ context.Context, userID string) ([]Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entitlement
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].UserID == userID {
			out = append(out, s.rows[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) find(userID, productID, licenseID string) bool {
	return slices.ContainsFunc(s.rows, func(e Entitlement) bool {
		return e.UserID == userID && e.ProductID == productID && e.LicenseID == licenseID
	})
}
