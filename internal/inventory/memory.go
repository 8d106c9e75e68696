package inventory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/StepIgor/otus-final/internal/memtx"
)

type unitKey struct{ product, license string }

// MemoryStore keeps reservations in process. Transactions run one at a time.
type MemoryStore struct {
	tx       memtx.Guard
	mu       sync.RWMutex
	products map[string]Product
	units    map[unitKey]LicenseUnit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: map[string]Product{}, units: map[unitKey]LicenseUnit{}}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.Do(ctx, func() func() {
		s.mu.Lock()
		saved := maps.Clone(s.units)
		s.mu.Unlock()
		return func() {
			s.mu.Lock()
			s.units = saved
			s.mu.Unlock()
		}
	}, fn)
}

func (s *MemoryStore) LockHolder(context.Context, string, string) error { return nil }

func (s *MemoryStore) HeldBy(_ context.Context, productID, userID string) (LicenseUnit, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.units {
		if u.ProductID == productID && u.UserID == userID {
			return u, true, nil
		}
	}
	return LicenseUnit{}, false, nil
}

func (s *MemoryStore) Product(_ context.Context, productID string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (s *MemoryStore) ClaimFree(_ context.Context, productID, userID, orderID string) (LicenseUnit, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var free []string
	for k, u := range s.units {
		if k.product == productID && u.Free() {
			free = append(free, k.license)
		}
	}
	if len(free) == 0 {
		return LicenseUnit{}, false, nil
	}
	sort.Strings(free)
	u := LicenseUnit{ProductID: productID, LicenseID: free[0], UserID: userID, OrderID: orderID, UpdatedAt: time.Now().UTC()}
	s.units[unitKey{productID, free[0]}] = u
	return u, true, nil
}

func (s *MemoryStore) Release(_ context.Context, u LicenseUnit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := unitKey{u.ProductID, u.LicenseID}
	cur, ok := s.units[k]
	if !ok || cur.UserID != u.UserID || cur.OrderID != u.OrderID || cur.Free() {
		return false, nil
	}
	s.units[k] = LicenseUnit{ProductID: u.ProductID, LicenseID: u.LicenseID, UpdatedAt: time.Now().UTC()}
	return true, nil
}

func (s *MemoryStore) AddProduct(_ context.Context, p Product, licenseIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	for _, id := range licenseIDs {
		k := unitKey{p.ID, id}
		if _, ok := s.units[k]; !ok {
			s.units[k] = LicenseUnit{ProductID: p.ID, LicenseID: id}
		}
	}
	return nil
}

// Unit returns the current state of one license unit.
func (s *MemoryStore) Unit(productID, licenseID string) (LicenseUnit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[unitKey{productID, licenseID}]
	return u, ok
}
