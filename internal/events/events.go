package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Envelope struct {
	EventID        string          `json:"event_id"`
	Exchange       string          `json:"exchange"`
	RoutingKey     string          `json:"routing_key"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Producer       string          `json:"producer"`
	CorrelationID  string          `json:"correlation_id,omitempty"` // order id
	OccurredAt     time.Time       `json:"occurred_at"`
	Payload        json.RawMessage `json:"payload"`
}

func (e Envelope) Route() Route { return Route{Exchange: e.Exchange, RoutingKey: e.RoutingKey} }

// Outbox persists envelopes inside the caller's local transaction.
type Outbox interface {
	Enqueue(ctx context.Context, envs ...Envelope) error
}

type keyed interface {
	IdempotencyKey() string
}

// New wraps payload for route. Payloads carrying a uuid lift it into the envelope.
func New(route Route, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", route, err)
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		Exchange:      route.Exchange,
		RoutingKey:    route.RoutingKey,
		Producer:      producer,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
		Payload:       b,
	}
	if k, ok := payload.(keyed); ok {
		env.IdempotencyKey = k.IdempotencyKey()
	}
	return env, nil
}

// Status values carried by orders.updated.
const (
	StatusPending   = "pending"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
)

// Comments attached to orders.updated by the component that decides the outcome.
const (
	ReasonAlreadyReserved   = "already reserved under another order"
	ReasonNoStock           = "no stock"
	ReasonProductNotFound   = "product not found"
	ReasonInsufficientFunds = "insufficient funds"
	ReasonAwaitingSeller    = "awaiting seller fulfillment"
	ReasonGranted           = "granted"
	ReasonAlreadyOwned      = "already owned"
	ReasonSellerDeclined    = "declined by seller"
	ReasonSellerDelivered   = "delivered by seller"
)

type ProductType string

const (
	Digital  ProductType = "digital"
	Physical ProductType = "physical"
)

func (t ProductType) Valid() bool { return t == Digital || t == Physical }

type OrderCreated struct {
	OrderID   string `json:"orderId"`
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
}

// Purchase is orders.created after a successful reservation (billing) or debit (library).
type Purchase struct {
	UUID         string      `json:"uuid"`
	OrderID      string      `json:"orderId"`
	UserID       string      `json:"userId"`
	ProductID    string      `json:"productId"`
	SellerID     string      `json:"sellerId"`
	ProductType  ProductType `json:"productType"`
	ProductPrice int64       `json:"productPrice"`
	ProductTitle string      `json:"productTitle"`
	LicenseID    string      `json:"licenseId"`
}

func (p Purchase) IdempotencyKey() string { return p.UUID }

type UserCreated struct {
	UserID string `json:"userId"`
}

type OrderCompleted struct {
	OrderID   string `json:"orderId,omitempty"`
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
	LicenseID string `json:"licenseId"`
}

// OrderUpdated reports a status change. Empty fields mean "not known by the sender".
type OrderUpdated struct {
	UUID        string      `json:"uuid,omitempty"`
	OrderID     string      `json:"orderId"`
	UserID      string      `json:"userId,omitempty"`
	ProductID   string      `json:"productId,omitempty"`
	LicenseID   string      `json:"licenseId,omitempty"`
	SellerID    string      `json:"sellerId,omitempty"`
	ProductType ProductType `json:"productType,omitempty"`
	Price       *int64      `json:"price,omitempty"`
	Status      string      `json:"status"`
	Comment     string      `json:"comment"`
}

func (u OrderUpdated) IdempotencyKey() string { return u.UUID }

type NotificationCreated struct {
	UUID   string `json:"uuid"`
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

func (n NotificationCreated) IdempotencyKey() string { return n.UUID }

// Price returns a pointer for OrderUpdated.Price.
func Price(v int64) *int64 { return &v }

// Cancelled builds the compensation event for a purchase that could not proceed.
func (p Purchase) Cancelled(key, reason string) OrderUpdated {
	return p.update(key, StatusCancelled, reason)
}

// Updated builds a status event that carries every field the purchase knows.
func (p Purchase) Updated(status, comment string) OrderUpdated {
	return p.update(p.UUID, status, comment)
}

func (p Purchase) update(key, status, comment string) OrderUpdated {
	return OrderUpdated{
		UUID:        key,
		OrderID:     p.OrderID,
		UserID:      p.UserID,
		ProductID:   p.ProductID,
		LicenseID:   p.LicenseID,
		SellerID:    p.SellerID,
		ProductType: p.ProductType,
		Price:       Price(p.ProductPrice),
		Status:      status,
		Comment:     comment,
	}
}
