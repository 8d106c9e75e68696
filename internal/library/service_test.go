package library

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/StepIgor/otus-final/internal/events"
	kafkax "github.com/StepIgor/otus-final/internal/kafka"
	"github.com/StepIgor/otus-final/internal/testutil"
)

func newService(t *testing.T) (*Service, *testutil.Outbox) {
	t.Helper()
	out := &testutil.Outbox{}
	return NewService(NewMemoryStore(), out, zaptest.NewLogger(t)), out
}

func paid(orderID string) events.Purchase {
	return events.Purchase{
		UUID:         uuid.NewString(),
		OrderID:      orderID,
		UserID:       "u-1",
		ProductID:    "p-1",
		SellerID:     "s-1",
		ProductType:  events.Digital,
		ProductPrice: 500,
		ProductTitle: "Game",
		LicenseID:    "lic-1",
	}
}

func TestHandlePurchaseGrants(t *testing.T) {
	svc, out := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandlePurchase(ctx, paid("o-1")))
	require.NoError(t, svc.HandlePurchase(ctx, paid("o-1")))

	envs := out.Routed(events.OrdersOrderUpdated)
	require.Len(t, envs, 2)
	first := testutil.Payload[events.OrderUpdated](t, envs[0])
	assert.Equal(t, events.StatusDone, first.Status)
	assert.Equal(t, events.ReasonGranted, first.Comment)
	assert.Equal(t, "lic-1", first.LicenseID)
	assert.Equal(t, events.ReasonAlreadyOwned, testutil.Payload[events.OrderUpdated](t, envs[1]).Comment)

	owned, err := svc.List(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "o-1", owned[0].OrderID)
}

func TestHandleCompletedRecordsHandover(t *testing.T) {
	svc, out := newService(t)
	ctx := context.Background()
	ev := events.OrderCompleted{OrderID: "o-2", UserID: "u-1", ProductID: "p-2", LicenseID: "box-7"}

	require.NoError(t, svc.HandleCompleted(ctx, ev))
	require.NoError(t, svc.HandleCompleted(ctx, ev))

	assert.Empty(t, out.All())
	owned, err := svc.List(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

func TestHandleDispatch(t *testing.T) {
	svc, out := newService(t)

	env, err := events.New(events.LibraryOrderCreated, "billing", "o-1", paid("o-1"))
	require.NoError(t, err)
	require.NoError(t, svc.Handle(context.Background(), env))
	assert.Len(t, out.All(), 1)

	env, err = events.New(events.LibraryOrderCompleted, "orders", "o-3", events.OrderCompleted{UserID: "u-1", ProductID: "p-3"})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Handle(context.Background(), env), kafkax.ErrMalformed)
}

func TestListRequiresUser(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.List(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
