package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/StepIgor/otus-final/internal/events"
)

const producer = "inventory"

type Service struct {
	store  Store
	outbox events.Outbox
	log    *zap.Logger
}

func NewService(store Store, outbox events.Outbox, log *zap.Logger) *Service {
	return &Service{store: store, outbox: outbox, log: log}
}

// Handle is the entry point for both store_events queues.
func (s *Service) Handle(ctx context.Context, env events.Envelope) error {
	ev, err := events.DecodeStore(env)
	if err != nil {
		return err
	}
	switch ev := ev.(type) {
	case events.OrderCreated:
		return s.HandleOrderCreated(ctx, ev)
	case events.OrderUpdated:
		return s.HandleOrderUpdated(ctx, ev)
	}
	return nil
}

// HandleOrderCreated reserves one unit for the order, or cancels the order when it cannot.
func (s *Service) HandleOrderCreated(ctx context.Context, ev events.OrderCreated) error {
	log := s.log.With(zap.String("order_id", ev.OrderID), zap.String("user_id", ev.UserID), zap.String("product_id", ev.ProductID))

	return s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockHolder(ctx, ev.ProductID, ev.UserID); err != nil {
			return fmt.Errorf("lock holder: %w", err)
		}

		held, ok, err := s.store.HeldBy(ctx, ev.ProductID, ev.UserID)
		if err != nil {
			return err
		}
		if ok {
			if held.OrderID == ev.OrderID {
				log.Info("reservation already made, redelivery ignored", zap.String("license_id", held.LicenseID))
				return nil
			}
			log.Info("user already holds a unit", zap.String("held_by_order", held.OrderID))
			return s.cancel(ctx, ev, Product{}, events.ReasonAlreadyReserved)
		}

		product, err := s.store.Product(ctx, ev.ProductID)
		if errors.Is(err, ErrProductNotFound) {
			log.Info("product not found")
			return s.cancel(ctx, ev, Product{}, events.ReasonProductNotFound)
		}
		if err != nil {
			return err
		}

		unit, ok, err := s.store.ClaimFree(ctx, ev.ProductID, ev.UserID, ev.OrderID)
		if err != nil {
			return fmt.Errorf("claim unit: %w", err)
		}
		if !ok {
			log.Info("no free units")
			return s.cancel(ctx, ev, product, events.ReasonNoStock)
		}

		env, err := events.New(events.BillingOrderCreated, producer, ev.OrderID, events.Purchase{
			UUID:         uuid.NewString(),
			OrderID:      ev.OrderID,
			UserID:       ev.UserID,
			ProductID:    ev.ProductID,
			SellerID:     product.SellerID,
			ProductType:  product.Type,
			ProductPrice: product.Price,
			ProductTitle: product.Title,
			LicenseID:    unit.LicenseID,
		})
		if err != nil {
			return err
		}
		log.Info("unit reserved", zap.String("license_id", unit.LicenseID))
		return s.outbox.Enqueue(ctx, env)
	})
}

func (s *Service) cancel(ctx context.Context, ev events.OrderCreated, p Product, reason string) error {
	upd := events.OrderUpdated{
		UUID:      uuid.NewString(),
		OrderID:   ev.OrderID,
		UserID:    ev.UserID,
		ProductID: ev.ProductID,
		SellerID:  p.SellerID,
		Status:    events.StatusCancelled,
		Comment:   reason,
	}
	if p.ID != "" {
		upd.ProductType = p.Type
		upd.Price = events.Price(p.Price)
	}
	env, err := events.New(events.OrdersOrderUpdated, producer, ev.OrderID, upd)
	if err != nil {
		return err
	}
	return s.outbox.Enqueue(ctx, env)
}

// HandleOrderUpdated releases the unit held for a cancelled order. Other statuses are ignored.
func (s *Service) HandleOrderUpdated(ctx context.Context, ev events.OrderUpdated) error {
	if ev.Status != events.StatusCancelled || ev.LicenseID == "" {
		return nil
	}
	if ev.ProductID == "" || ev.UserID == "" {
		s.log.Warn("cancellation without holder, nothing to release", zap.String("order_id", ev.OrderID))
		return nil
	}
	released, err := s.store.Release(ctx, LicenseUnit{
		ProductID: ev.ProductID,
		LicenseID: ev.LicenseID,
		UserID:    ev.UserID,
		OrderID:   ev.OrderID,
	})
	if err != nil {
		return fmt.Errorf("release unit: %w", err)
	}
	s.log.Info("release processed",
		zap.String("order_id", ev.OrderID),
		zap.String("license_id", ev.LicenseID),
		zap.Bool("released", released),
	)
	return nil
}
