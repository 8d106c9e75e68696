package inventory

import (
	"context"
	"errors"
)

var ErrProductNotFound = errors.New("product not found")

// Store is the reservation state owned by the inventory service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockHolder serializes reservations of one product by one user until the transaction ends.
	LockHolder(ctx context.Context, productID, userID string) error
	HeldBy(ctx context.Context, productID, userID string) (LicenseUnit, bool, error)
	Product(ctx context.Context, productID string) (Product, error)
	// ClaimFree assigns one free unit of productID to the order. ok is false when none is left.
	ClaimFree(ctx context.Context, productID, userID, orderID string) (unit LicenseUnit, ok bool, err error)
	// Release frees the unit only if it is still held by exactly that user and order.
	Release(ctx context.Context, u LicenseUnit) (bool, error)
}
