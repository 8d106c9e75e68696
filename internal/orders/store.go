package orders

import "context"

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	// GetForUpdate locks the row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (Order, error)
	Update(ctx context.Context, o Order) error
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}
