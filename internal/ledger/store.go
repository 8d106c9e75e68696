package ledger

import (
	"context"
	"errors"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidInput  = errors.New("invalid input")
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockUser serializes balance checks of one user until the transaction ends.
	LockUser(ctx context.Context, userID string) error
	Entry(ctx context.Context, id string) (Entry, bool, error)
	Decided(ctx context.Context, key string) (bool, error)
	RecordDecision(ctx context.Context, d Decision) error
	Balance(ctx context.Context, userID string) (int64, error)
	// Insert appends e. It returns false when an entry with the same id, or the same order and
	// type, already exists.
	Insert(ctx context.Context, e Entry) (bool, error)
	FindByOrder(ctx context.Context, orderID string, t EntryType) (Entry, bool, error)
	// Entries lists a user's movements, newest first.
	Entries(ctx context.Context, userID string) ([]Entry, error)
}

// BalanceCache mirrors computed balances. It is never the source of truth.
type BalanceCache interface {
	Get(ctx context.Context, userID string) (int64, bool, error)
	Set(ctx context.Context, userID string, balance int64) error
	Invalidate(ctx context.Context, userID string) error
}

type noCache struct{}

func (noCache) Get(context.Context, string) (int64, bool, error) { return 0, false, nil }
func (noCache) Set(context.Context, string, int64) error { return nil }
func (noCache) Invalidate(context.Context, string) error { return nil }
