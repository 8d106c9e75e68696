package library

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/StepIgor/otus-final/internal/events"
)

const producer = "library"

var ErrInvalidInput = errors.New("invalid input")

type Service struct {
	store  Store
	outbox events.Outbox
	log    *zap.Logger
}

func NewService(store Store, outbox events.Outbox, log *zap.Logger) *Service {
	return &Service{store: store, outbox: outbox, log: log}
}

func (s *Service) Handle(ctx context.Context, env events.Envelope) error {
	ev, err := events.DecodeLibrary(env)
	if err != nil {
		return err
	}
	switch ev := ev.(type) {
	case events.Purchase:
		return s.HandlePurchase(ctx, ev)
	case events.OrderCompleted:
		return s.HandleCompleted(ctx, ev)
	}
	return nil
}

// HandlePurchase grants a paid digital product and reports the order done.
func (s *Service) HandlePurchase(ctx context.Context, p events.Purchase) error {
	return s.store.WithTx(ctx, func(ctx context.Context) error {
		owned, err := s.store.Exists(ctx, p.UserID, p.ProductID, p.LicenseID)
		if err != nil {
			return err
		}
		comment := events.ReasonAlreadyOwned
		if !owned {
			granted, err := s.store.Grant(ctx, Entitlement{
				UserID:    p.UserID,
				ProductID: p.ProductID,
				LicenseID: p.LicenseID,
				OrderID:   p.OrderID,
			})
			if err != nil {
				return fmt.Errorf("grant: %w", err)
			}
			if granted {
				comment = events.ReasonGranted
			}
		}
		s.log.Info("entitlement processed",
			zap.String("order_id", p.OrderID),
			zap.String("user_id", p.UserID),
			zap.String("product_id", p.ProductID),
			zap.String("outcome", comment),
		)
		env, err := events.New(events.OrdersOrderUpdated, producer, p.OrderID, p.Updated(events.StatusDone, comment))
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, env)
	})
}

// HandleCompleted records a physical handover. Nothing is emitted.
func (s *Service) HandleCompleted(ctx context.Context, ev events.OrderCompleted) error {
	granted, err := s.store.Grant(ctx, Entitlement{
		UserID:    ev.UserID,
		ProductID: ev.ProductID,
		LicenseID: ev.LicenseID,
		OrderID:   ev.OrderID,
	})
	if err != nil {
		return fmt.Errorf("grant: %w", err)
	}
	s.log.Info("handover recorded", zap.String("order_id", ev.OrderID), zap.Bool("new", granted))
	return nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Entitlement, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	return s.store.List(ctx, userID)
}
