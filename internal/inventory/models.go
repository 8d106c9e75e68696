package inventory

import (
	"time"

	"github.com/StepIgor/otus-final/internal/events"
)

type Product struct {
	ID       string
	SellerID string
	Type     events.ProductType
	Title    string
	Price    int64
}

// LicenseUnit is free when UserID and OrderID are both empty, held when both are set.
type LicenseUnit struct {
	ProductID string
	LicenseID string
	UserID    string
	OrderID   string
	UpdatedAt time.Time
}

func (u LicenseUnit) Free() bool { return u.UserID == "" && u.OrderID == "" }
