package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/StepIgor/otus-final/internal/kafka"
)

var ErrUnknownRoute = errors.New("unknown route")

// StoreEvent is anything carried by store_events.
type StoreEvent interface{ storeEvent() }

// BillingEvent is anything carried by billing_events.
type BillingEvent interface{ billingEvent() }

// LibraryEvent is anything carried by library_events.
type LibraryEvent interface{ libraryEvent() }

func (OrderCreated) storeEvent() {}
func (OrderUpdated) storeEvent() {}
func (Purchase) billingEvent() {}
func (UserCreated) billingEvent() {}
func (OrderUpdated) billingEvent() {}
func (Purchase) libraryEvent() {}
func (OrderCompleted) libraryEvent() {}

// Handler decodes the Kafka value into an Envelope before calling fn. Undecodable values are
// reported as malformed so the consumer drops them instead of retrying.
func Handler(fn func(ctx context.Context, env Envelope) error) kafkax.Handler {
	return func(ctx context.Context, m kafkago.Message) error {
		var env Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			return kafkax.Malformed(fmt.Errorf("decode envelope: %w", err))
		}
		if env.Exchange == "" || env.RoutingKey == "" {
			return kafkax.Malformed(errors.New("envelope without route"))
		}
		return fn(ctx, env)
	}
}

func DecodeStore(env Envelope) (StoreEvent, error) {
	if env.Exchange != ExchangeStore {
		return nil, unknown(env)
	}
	switch env.RoutingKey {
	case KeyOrderCreated:
		p, err := unwrap[OrderCreated](env, OrderCreated.validate)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KeyOrdersUpdated:
		p, err := unwrap[OrderUpdated](env, OrderUpdated.validate)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, unknown(env)
}

func DecodeBilling(env Envelope) (BillingEvent, error) {
	if env.Exchange != ExchangeBilling {
		return nil, unknown(env)
	}
	switch env.RoutingKey {
	case KeyOrdersCreated:
		p, err := unwrap[Purchase](env, Purchase.validate)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KeyUserCreated:
		p, err := unwrap[UserCreated](env, UserCreated.validate)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KeyOrdersUpdated:
		// billing applies money effects, so the key is mandatory here
		p, err := unwrap[OrderUpdated](env, func(u OrderUpdated) error {
			if u.UUID == "" {
				return errors.New("uuid is required")
			}
			return u.validate()
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, unknown(env)
}

func DecodeLibrary(env Envelope) (LibraryEvent, error) {
	if env.Exchange != ExchangeLibrary {
		return nil, unknown(env)
	}
	switch env.RoutingKey {
	case KeyOrdersCreated:
		p, err := unwrap[Purchase](env, Purchase.validate)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KeyOrdersCompleted:
		p, err := unwrap[OrderCompleted](env, OrderCompleted.validate)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, unknown(env)
}

// DecodeOrders handles orders_events, which only carries status projections.
func DecodeOrders(env Envelope) (OrderUpdated, error) {
	if env.Route() != OrdersOrderUpdated {
		return OrderUpdated{}, unknown(env)
	}
	return unwrap[OrderUpdated](env, OrderUpdated.validate)
}

func unwrap[T any](env Envelope, validate func(T) error) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, kafkax.Malformed(fmt.Errorf("decode %s payload: %w", env.Route(), err))
	}
	if err := validate(t); err != nil {
		return t, kafkax.Malformed(fmt.Errorf("invalid %s payload: %w", env.Route(), err))
	}
	return t, nil
}

func unknown(env Envelope) error {
	return kafkax.Malformed(fmt.Errorf("%w: %s", ErrUnknownRoute, env.Route()))
}

func required(fields map[string]string) error {
	for name, v := range fields {
		if v == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

func checkKey(key string) error {
	if _, err := uuid.Parse(key); err != nil {
		return fmt.Errorf("uuid %q: %w", key, err)
	}
	return nil
}

func (p OrderCreated) validate() error {
	return required(map[string]string{"orderId": p.OrderID, "userId": p.UserID, "productId": p.ProductID})
}

func (p Purchase) validate() error {
	if err := required(map[string]string{
		"orderId":   p.OrderID,
		"userId":    p.UserID,
		"productId": p.ProductID,
		"licenseId": p.LicenseID,
	}); err != nil {
		return err
	}
	if err := checkKey(p.UUID); err != nil {
		return err
	}
	if !p.ProductType.Valid() {
		return fmt.Errorf("productType %q", p.ProductType)
	}
	if p.ProductPrice < 0 {
		return fmt.Errorf("productPrice %d is negative", p.ProductPrice)
	}
	return nil
}

func (p UserCreated) validate() error {
	return required(map[string]string{"userId": p.UserID})
}

func (p OrderCompleted) validate() error {
	return required(map[string]string{"userId": p.UserID, "productId": p.ProductID, "licenseId": p.LicenseID})
}

func (u OrderUpdated) validate() error {
	if err := required(map[string]string{"orderId": u.OrderID}); err != nil {
		return err
	}
	switch u.Status {
	case StatusPending, StatusDone, StatusCancelled:
	default:
		return fmt.Errorf("status %q", u.Status)
	}
	if u.UUID != "" {
		if err := checkKey(u.UUID); err != nil {
			return err
		}
	}
	if u.Price != nil && *u.Price < 0 {
		return fmt.Errorf("price %d is negative", *u.Price)
	}
	return nil
}
