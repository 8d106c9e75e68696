package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/StepIgor/otus-final/internal/events"
)

const producer = "billing"

var (
	signupNamespace  = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ledger.signup-bonus"))
	depositNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ledger.deposit"))
)

type Options struct {
	SignupBonus      int64
	SerializePerUser bool
}

type Service struct {
	store  Store
	outbox events.Outbox
	cache  BalanceCache
	opts   Options
	log    *zap.Logger
}

func NewService(store Store, outbox events.Outbox, cache BalanceCache, opts Options, log *zap.Logger) *Service {
	if cache == nil {
		cache = noCache{}
	}
	return &Service{store: store, outbox: outbox, cache: cache, opts: opts, log: log}
}

// Handle dispatches the three billing_events queues.
func (s *Service) Handle(ctx context.Context, env events.Envelope) error {
	ev, err := events.DecodeBilling(env)
	if err != nil {
		return err
	}
	switch ev := ev.(type) {
	case events.Purchase:
		return s.HandlePurchase(ctx, ev)
	case events.OrderUpdated:
		return s.HandleCompensation(ctx, ev)
	case events.UserCreated:
		return s.HandleUserCreated(ctx, ev)
	}
	return nil
}

// HandlePurchase debits the order price once per uuid, or cancels the order on insufficient funds.
func (s *Service) HandlePurchase(ctx context.Context, p events.Purchase) error {
	log := s.log.With(zap.String("order_id", p.OrderID), zap.String("user_id", p.UserID), zap.String("uuid", p.UUID))
	var debited bool

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.lock(ctx, p.UserID); err != nil {
			return err
		}
		applied, err := s.applied(ctx, p.UUID)
		if err != nil {
			return err
		}
		if applied {
			log.Info("purchase already settled, redelivery ignored")
			return nil
		}

		if p.ProductPrice == 0 {
			if err := s.store.RecordDecision(ctx, Decision{Key: p.UUID, OrderID: p.OrderID, Outcome: OutcomeFree}); err != nil {
				return err
			}
			return s.forward(ctx, p)
		}

		balance, err := s.store.Balance(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("balance: %w", err)
		}
		if balance < p.ProductPrice {
			log.Info("insufficient funds", zap.Int64("balance", balance), zap.Int64("price", p.ProductPrice))
			if err := s.store.RecordDecision(ctx, Decision{Key: p.UUID, OrderID: p.OrderID, Outcome: OutcomeRejected}); err != nil {
				return err
			}
			return s.reject(ctx, p)
		}

		inserted, err := s.store.Insert(ctx, Entry{
			ID:          p.UUID,
			UserID:      p.UserID,
			Type:        Purchase,
			Amount:      p.ProductPrice,
			OrderID:     p.OrderID,
			Description: "purchase: " + p.ProductTitle,
		})
		if err != nil {
			return fmt.Errorf("insert purchase: %w", err)
		}
		if !inserted {
			log.Warn("order already has a purchase under another uuid")
			return nil
		}
		debited = true
		log.Info("purchase debited", zap.Int64("amount", p.ProductPrice))
		return s.forward(ctx, p)
	})
	if err != nil {
		return err
	}
	if debited {
		s.invalidate(ctx, p.UserID)
	}
	return nil
}

func (s *Service) forward(ctx context.Context, p events.Purchase) error {
	var (
		env events.Envelope
		err error
	)
	if p.ProductType == events.Digital {
		env, err = events.New(events.LibraryOrderCreated, producer, p.OrderID, p)
	} else {
		env, err = events.New(events.OrdersOrderUpdated, producer, p.OrderID, p.Updated(events.StatusPending, events.ReasonAwaitingSeller))
	}
	if err != nil {
		return err
	}
	return s.outbox.Enqueue(ctx, env)
}

func (s *Service) reject(ctx context.Context, p events.Purchase) error {
	upd := p.Cancelled(uuid.NewString(), events.ReasonInsufficientFunds)
	release, err := events.New(events.StoreOrderUpdated, producer, p.OrderID, upd)
	if err != nil {
		return err
	}
	project, err := events.New(events.OrdersOrderUpdated, producer, p.OrderID, upd)
	if err != nil {
		return err
	}
	return s.outbox.Enqueue(ctx, release, project)
}

// HandleCompensation refunds the order's purchase once, then forwards the cancellation.
func (s *Service) HandleCompensation(ctx context.Context, u events.OrderUpdated) error {
	if u.Status != events.StatusCancelled {
		s.log.Debug("non-cancel update ignored", zap.String("order_id", u.OrderID), zap.String("status", u.Status))
		return nil
	}
	log := s.log.With(zap.String("order_id", u.OrderID), zap.String("uuid", u.UUID))
	var refundedUser string

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		if u.UserID != "" {
			if err := s.lock(ctx, u.UserID); err != nil {
				return err
			}
		}
		_, seen, err := s.store.Entry(ctx, u.UUID)
		if err != nil {
			return err
		}
		if !seen {
			user, err := s.refund(ctx, u)
			if err != nil {
				return err
			}
			refundedUser = user
		}
		env, err := events.New(events.OrdersOrderUpdated, producer, u.OrderID, u)
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, env)
	})
	if err != nil {
		return err
	}
	if refundedUser != "" {
		log.Info("purchase refunded")
		s.invalidate(ctx, refundedUser)
	}
	return nil
}

func (s *Service) refund(ctx context.Context, u events.OrderUpdated) (string, error) {
	purchase, found, err := s.store.FindByOrder(ctx, u.OrderID, Purchase)
	if err != nil {
		return "", err
	}
	if !found {
		return "", nil
	}
	if _, refunded, err := s.store.FindByOrder(ctx, u.OrderID, Refund); err != nil || refunded {
		return "", err
	}
	inserted, err := s.store.Insert(ctx, Entry{
		ID:          u.UUID,
		UserID:      purchase.UserID,
		Type:        Refund,
		Amount:      purchase.Amount,
		OrderID:     u.OrderID,
		Description: "refund: " + u.Comment,
	})
	if err != nil {
		return "", fmt.Errorf("insert refund: %w", err)
	}
	if !inserted {
		return "", nil
	}
	return purchase.UserID, nil
}

// HandleUserCreated grants the sign-up bonus. The entry id is derived from the user, so it
// is granted at most once.
func (s *Service) HandleUserCreated(ctx context.Context, ev events.UserCreated) error {
	if s.opts.SignupBonus <= 0 {
		return nil
	}
	inserted, err := s.store.Insert(ctx, Entry{
		ID:          uuid.NewSHA1(signupNamespace, []byte(ev.UserID)).String(),
		UserID:      ev.UserID,
		Type:        Deposit,
		Amount:      s.opts.SignupBonus,
		Description: "sign-up bonus",
	})
	if err != nil {
		return fmt.Errorf("insert bonus: %w", err)
	}
	if inserted {
		s.log.Info("sign-up bonus granted", zap.String("user_id", ev.UserID), zap.Int64("amount", s.opts.SignupBonus))
		s.invalidate(ctx, ev.UserID)
	}
	return nil
}

// Deposit credits a user. Repeating a request with the same key returns the original entry
// with created false.
func (s *Service) Deposit(ctx context.Context, userID string, amount int64, key string) (Entry, bool, error) {
	if userID == "" || key == "" {
		return Entry{}, false, fmt.Errorf("%w: user and idempotency key are required", ErrInvalidInput)
	}
	if amount <= 0 {
		return Entry{}, false, ErrInvalidAmount
	}
	e := Entry{
		ID:          uuid.NewSHA1(depositNamespace, []byte(userID+":"+key)).String(),
		UserID:      userID,
		Type:        Deposit,
		Amount:      amount,
		Description: "deposit",
	}
	inserted, err := s.store.Insert(ctx, e)
	if err != nil {
		return Entry{}, false, fmt.Errorf("insert deposit: %w", err)
	}
	stored, _, err := s.store.Entry(ctx, e.ID)
	if err != nil {
		return Entry{}, false, err
	}
	if inserted {
		s.invalidate(ctx, userID)
	}
	return stored, inserted, nil
}

// Balance reads through the cache. Cache failures fall back to the ledger.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if v, ok, err := s.cache.Get(ctx, userID); err != nil {
		s.log.Warn("balance cache read failed", zap.String("user_id", userID), zap.Error(err))
	} else if ok {
		return v, nil
	}
	balance, err := s.store.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Set(ctx, userID, balance); err != nil {
		s.log.Warn("balance cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return balance, nil
}

func (s *Service) Entries(ctx context.Context, userID string) ([]Entry, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	return s.store.Entries(ctx, userID)
}

func (s *Service) lock(ctx context.Context, userID string) error {
	if !s.opts.SerializePerUser {
		return nil
	}
	if err := s.store.LockUser(ctx, userID); err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func (s *Service) applied(ctx context.Context, key string) (bool, error) {
	if _, ok, err := s.store.Entry(ctx, key); err != nil || ok {
		return ok, err
	}
	return s.store.Decided(ctx, key)
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("balance cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}
