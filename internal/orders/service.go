package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/StepIgor/otus-final/internal/clock"
	"github.com/StepIgor/otus-final/internal/events"
	kafkax "github.com/StepIgor/otus-final/internal/kafka"
)

const producer = "orders"

type Service struct {
	store  Store
	claims Claims
	outbox events.Outbox
	clock  clock.Clock
	log    *zap.Logger
}

func NewService(store Store, claims Claims, outbox events.Outbox, clk clock.Clock, log *zap.Logger) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Service{store: store, claims: claims, outbox: outbox, clock: clk, log: log}
}

// CreateOrder starts a purchase saga. A repeated client request id returns the original order.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	if in.UserID == "" || in.ProductID == "" || in.ClientRequestID == "" {
		return CreateOrderResult{}, fmt.Errorf("%w: userId, productId and clientRequestId are required", ErrInvalidInput)
	}

	id := uuid.NewString()
	existing, claimed, err := s.claims.Claim(ctx, in.UserID, in.ClientRequestID, id)
	if err != nil {
		return CreateOrderResult{}, fmt.Errorf("claim request: %w", err)
	}
	if !claimed {
		o, err := s.store.Get(ctx, existing)
		if errors.Is(err, ErrOrderNotFound) {
			return CreateOrderResult{}, ErrOrderInFlight
		}
		if err != nil {
			return CreateOrderResult{}, err
		}
		return CreateOrderResult{Order: o, Replayed: true}, nil
	}

	now := s.clock.Now()
	o := Order{
		ID:              id,
		UserID:          in.UserID,
		ProductID:       in.ProductID,
		Status:          StatusProcessing,
		ClientRequestID: in.ClientRequestID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		env, err := events.New(events.StoreOrderCreated, producer, o.ID, events.OrderCreated{
			OrderID:   o.ID,
			UserID:    o.UserID,
			ProductID: o.ProductID,
		})
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, env)
	})
	if err != nil {
		if rerr := s.claims.Release(context.WithoutCancel(ctx), in.UserID, in.ClientRequestID, id); rerr != nil {
			s.log.Warn("release order claim failed", zap.String("order_id", id), zap.Error(rerr))
		}
		return CreateOrderResult{}, err
	}
	s.log.Info("order created", zap.String("order_id", o.ID), zap.String("user_id", o.UserID), zap.String("product_id", o.ProductID))
	return CreateOrderResult{Order: o}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	if !validID(id) {
		return Order{}, ErrOrderNotFound
	}
	return s.store.Get(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	return s.store.ListByUser(ctx, userID)
}

// Handle consumes orders_events.
func (s *Service) Handle(ctx context.Context, env events.Envelope) error {
	u, err := events.DecodeOrders(env)
	if err != nil {
		return err
	}
	return s.Apply(ctx, u)
}

// Apply projects a status event onto the order. Events for unknown or terminal orders and
// illegal transitions are dropped with a log line.
func (s *Service) Apply(ctx context.Context, u events.OrderUpdated) error {
	to, err := ParseStatus(u.Status)
	if err != nil {
		return kafkax.Malformed(err)
	}
	log := s.log.With(zap.String("order_id", u.OrderID), zap.String("status", u.Status))
	if !validID(u.OrderID) {
		log.Warn("update for unknown order dropped")
		return nil
	}

	return s.store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.store.GetForUpdate(ctx, u.OrderID)
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn("update for unknown order dropped")
			return nil
		}
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, to) {
			log.Info("outdated or duplicate update dropped", zap.String("current", string(o.Status)))
			return nil
		}

		o.Status = to
		o.Comment = u.Comment
		if u.SellerID != "" {
			o.SellerID = u.SellerID
		}
		if u.LicenseID != "" {
			o.LicenseID = u.LicenseID
		}
		if u.ProductID != "" {
			o.ProductID = u.ProductID
		}
		if u.Price != nil {
			o.Price = events.Price(*u.Price)
		}
		o.UpdatedAt = s.clock.Now()
		if err := s.store.Update(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		log.Info("order projected", zap.String("comment", o.Comment))

		if !to.Terminal() {
			return nil
		}
		return s.notify(ctx, o)
	})
}

// Decline cancels a pending order on behalf of its seller and starts the compensation.
func (s *Service) Decline(ctx context.Context, sellerID, orderID, reason string) (Order, error) {
	if reason == "" {
		reason = events.ReasonSellerDeclined
	}
	return s.settle(ctx, sellerID, orderID, StatusCancelled, reason, func(ctx context.Context, o Order) error {
		upd := events.OrderUpdated{
			UUID:      uuid.NewString(),
			OrderID:   o.ID,
			UserID:    o.UserID,
			ProductID: o.ProductID,
			LicenseID: o.LicenseID,
			SellerID:  o.SellerID,
			Price:     o.Price,
			Status:    events.StatusCancelled,
			Comment:   reason,
		}
		release, err := events.New(events.StoreOrderUpdated, producer, o.ID, upd)
		if err != nil {
			return err
		}
		refund, err := events.New(events.BillingOrderUpdated, producer, o.ID, upd)
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, release, refund)
	})
}

// Complete marks a pending physical order delivered. It has no monetary effect.
func (s *Service) Complete(ctx context.Context, sellerID, orderID string) (Order, error) {
	return s.settle(ctx, sellerID, orderID, StatusDone, events.ReasonSellerDelivered, func(ctx context.Context, o Order) error {
		env, err := events.New(events.LibraryOrderCompleted, producer, o.ID, events.OrderCompleted{
			OrderID:   o.ID,
			UserID:    o.UserID,
			ProductID: o.ProductID,
			LicenseID: o.LicenseID,
		})
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, env)
	})
}

func (s *Service) settle(ctx context.Context, sellerID, orderID string, to Status, comment string, emit func(ctx context.Context, o Order) error) (Order, error) {
	if sellerID == "" {
		return Order{}, fmt.Errorf("%w: seller is required", ErrInvalidInput)
	}
	if !validID(orderID) {
		return Order{}, ErrOrderNotFound
	}
	var out Order
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.store.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.SellerID != sellerID {
			return ErrOrderNotFound
		}
		if o.Status != StatusPending {
			return fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.Status)
		}
		o.Status = to
		o.Comment = comment
		o.UpdatedAt = s.clock.Now()
		if err := s.store.Update(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if err := emit(ctx, o); err != nil {
			return err
		}
		if err := s.notify(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.log.Info("order settled by seller", zap.String("order_id", orderID), zap.String("seller_id", sellerID), zap.String("status", string(to)))
	return out, nil
}

func (s *Service) notify(ctx context.Context, o Order) error {
	env, err := events.New(events.NotificationsCreated, producer, o.ID, events.NotificationCreated{
		UUID:   uuid.NewString(),
		UserID: o.UserID,
		Text:   notificationText(o),
	})
	if err != nil {
		return err
	}
	return s.outbox.Enqueue(ctx, env)
}

func notificationText(o Order) string {
	switch o.Status {
	case StatusDone:
		return fmt.Sprintf("Order %s is complete: %s", o.ID, o.Comment)
	case StatusCancelled:
		return fmt.Sprintf("Order %s was cancelled: %s", o.ID, o.Comment)
	}
	return fmt.Sprintf("Order %s is %s", o.ID, o.Status)
}

// validID screens ids before they reach the uuid column, where a cast error would abort the
// surrounding transaction.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
