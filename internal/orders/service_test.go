package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/StepIgor/otus-final/internal/clock"
	"github.com/StepIgor/otus-final/internal/events"
	kafkax "github.com/StepIgor/otus-final/internal/kafka"
	"github.com/StepIgor/otus-final/internal/testutil"
)

type fixture struct {
	svc   *Service
	store *MemoryStore
	out   *testutil.Outbox
	mr    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewMemoryStore()
	out := &testutil.Outbox{}
	clk := clock.NewFixed(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(store, NewRedisClaims(rdb, 24*time.Hour), out, clk, zaptest.NewLogger(t))
	return &fixture{svc: svc, store: store, out: out, mr: mr}
}

func (f *fixture) create(t *testing.T, user, req string) Order {
	t.Helper()
	res, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: user, ProductID: "p-1", ClientRequestID: req})
	require.NoError(t, err)
	return res.Order
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: "u-1", ProductID: "p-1", ClientRequestID: "req-1"})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, StatusProcessing, res.Order.Status)

	envs := f.out.Routed(events.StoreOrderCreated)
	require.Len(t, envs, 1)
	assert.Equal(t, events.OrderCreated{OrderID: res.Order.ID, UserID: "u-1", ProductID: "p-1"}, testutil.Payload[events.OrderCreated](t, envs[0]))
	assert.Equal(t, res.Order.ID, envs[0].CorrelationID)

	t.Run("replay returns the original order", func(t *testing.T) {
		again, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: "u-1", ProductID: "p-1", ClientRequestID: "req-1"})
		require.NoError(t, err)
		assert.True(t, again.Replayed)
		assert.Equal(t, res.Order.ID, again.Order.ID)
		assert.Len(t, f.out.Routed(events.StoreOrderCreated), 1)
	})

	t.Run("same request id from another user is a new order", func(t *testing.T) {
		other, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: "u-2", ProductID: "p-1", ClientRequestID: "req-1"})
		require.NoError(t, err)
		assert.False(t, other.Replayed)
		assert.NotEqual(t, res.Order.ID, other.Order.ID)
	})

	t.Run("window expiry allows a new order", func(t *testing.T) {
		f.mr.FastForward(25 * time.Hour)
		fresh, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: "u-1", ProductID: "p-1", ClientRequestID: "req-1"})
		require.NoError(t, err)
		assert.False(t, fresh.Replayed)
	})
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	for _, in := range []CreateOrderInput{
		{ProductID: "p", ClientRequestID: "r"},
		{UserID: "u", ClientRequestID: "r"},
		{UserID: "u", ProductID: "p"},
	} {
		_, err := f.svc.CreateOrder(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestCreateOrderInFlight(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mr.Set("idem:order:create:u-1:req-1", "11111111-1111-1111-1111-111111111111"))

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "u-1", ProductID: "p-1", ClientRequestID: "req-1"})
	assert.ErrorIs(t, err, ErrOrderInFlight)
}

func TestCreateOrderReleasesClaimOnFailure(t *testing.T) {
	f := newFixture(t)
	f.out.Err = errors.New("db gone")

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "u-1", ProductID: "p-1", ClientRequestID: "req-1"})
	require.Error(t, err)
	assert.False(t, f.mr.Exists("idem:order:create:u-1:req-1"))

	orders, err := f.svc.ListByUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Empty(t, orders)

	f.out.Err = nil
	res, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "u-1", ProductID: "p-1", ClientRequestID: "req-1"})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, "u-1", "req-1")

	pending := events.OrderUpdated{
		OrderID:   o.ID,
		SellerID:  "s-1",
		LicenseID: "box-1",
		Price:     events.Price(300),
		Status:    events.StatusPending,
		Comment:   events.ReasonAwaitingSeller,
	}
	require.NoError(t, f.svc.Apply(ctx, pending))
	got, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "s-1", got.SellerID)
	require.NotNil(t, got.Price)
	assert.Equal(t, int64(300), *got.Price)
	assert.Empty(t, f.out.Routed(events.NotificationsCreated))

	t.Run("absent fields keep stored values", func(t *testing.T) {
		require.NoError(t, f.svc.Apply(ctx, events.OrderUpdated{OrderID: o.ID, Status: events.StatusCancelled, Comment: "no stock"}))
		got, err := f.svc.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		assert.Equal(t, "box-1", got.LicenseID)
		assert.Equal(t, "no stock", got.Comment)

		notes := f.out.Routed(events.NotificationsCreated)
		require.Len(t, notes, 1)
		n := testutil.Payload[events.NotificationCreated](t, notes[0])
		assert.Equal(t, "u-1", n.UserID)
		assert.Contains(t, n.Text, "cancelled")
	})

	t.Run("terminal orders are immutable", func(t *testing.T) {
		require.NoError(t, f.svc.Apply(ctx, events.OrderUpdated{OrderID: o.ID, Status: events.StatusDone, Comment: events.ReasonGranted}))
		got, err := f.svc.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		assert.Len(t, f.out.Routed(events.NotificationsCreated), 1)
	})

	t.Run("unknown order is dropped", func(t *testing.T) {
		require.NoError(t, f.svc.Apply(ctx, events.OrderUpdated{OrderID: "missing", Status: events.StatusDone}))
	})

	t.Run("unknown status is malformed", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.Apply(ctx, events.OrderUpdated{OrderID: o.ID, Status: "shipped"}), kafkax.ErrMalformed)
	})
}

func pendingOrder(t *testing.T, f *fixture) Order {
	t.Helper()
	o := f.create(t, "u-1", uuid.NewString())
	require.NoError(t, f.svc.Apply(context.Background(), events.OrderUpdated{
		OrderID:   o.ID,
		UserID:    "u-1",
		SellerID:  "s-1",
		LicenseID: "box-1",
		Price:     events.Price(300),
		Status:    events.StatusPending,
		Comment:   events.ReasonAwaitingSeller,
	}))
	return o
}

func TestDecline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := pendingOrder(t, f)

	_, err := f.svc.Decline(ctx, "s-2", o.ID, "")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	got, err := f.svc.Decline(ctx, "s-1", o.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, events.ReasonSellerDeclined, got.Comment)

	release := f.out.Routed(events.StoreOrderUpdated)
	refund := f.out.Routed(events.BillingOrderUpdated)
	require.Len(t, release, 1)
	require.Len(t, refund, 1)
	upd := testutil.Payload[events.OrderUpdated](t, refund[0])
	assert.Equal(t, "box-1", upd.LicenseID)
	assert.Equal(t, "u-1", upd.UserID)
	assert.NotEmpty(t, upd.UUID)
	assert.Equal(t, upd.UUID, refund[0].IdempotencyKey)
	assert.Len(t, f.out.Routed(events.NotificationsCreated), 1)

	_, err = f.svc.Decline(ctx, "s-1", o.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, f.out.Routed(events.BillingOrderUpdated), 1)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := pendingOrder(t, f)

	got, err := f.svc.Complete(ctx, "s-1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)

	envs := f.out.Routed(events.LibraryOrderCompleted)
	require.Len(t, envs, 1)
	assert.Equal(t, events.OrderCompleted{OrderID: o.ID, UserID: "u-1", ProductID: "p-1", LicenseID: "box-1"}, testutil.Payload[events.OrderCompleted](t, envs[0]))
	assert.Empty(t, f.out.Routed(events.BillingOrderUpdated))

	_, err = f.svc.Complete(ctx, "s-1", o.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	processing := f.create(t, "u-1", "req-x")
	_, err = f.svc.Complete(ctx, "", processing.ID)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListByUserNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, "u-1", "r-1")
	second := f.create(t, "u-1", "r-2")

	// the fixed clock gives both orders the same timestamp, so ids break the tie
	orders, err := f.svc.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, []string{orders[0].ID, orders[1].ID})

	_, err = f.svc.ListByUser(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
