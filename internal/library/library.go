// Package library grants product ownership once an order is paid (digital) or handed over
// (physical). Rows are never deleted.
package library

import (
	"context"
	"time"
)

type Entitlement struct {
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	LicenseID string    `json:"licenseId"`
	OrderID   string    `json:"orderId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Exists(ctx context.Context, userID, productID, licenseID string) (bool, error)
	// Grant inserts e unless the triple is already owned. It reports whether a row was added.
	Grant(ctx context.Context, e Entitlement) (bool, error)
	List(ctx context.Context, userID string) ([]Entitlement, error)
}
