package orders

import "time"

type Order struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	ProductID       string    `json:"productId"`
	SellerID        string    `json:"sellerId,omitempty"`
	LicenseID       string    `json:"licenseId,omitempty"`
	Price           *int64    `json:"price,omitempty"`
	Status          Status    `json:"status"`
	Comment         string    `json:"comment"`
	ClientRequestID string    `json:"clientRequestId"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type CreateOrderInput struct {
	UserID          string `json:"userId"`
	ProductID       string `json:"productId"`
	ClientRequestID string `json:"clientRequestId"`
}

type CreateOrderResult struct {
	Order    Order
	Replayed bool
}
