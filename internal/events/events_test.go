package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/StepIgor/otus-final/internal/kafka"
)

func purchase() Purchase {
	return Purchase{
		UUID:         uuid.NewString(),
		OrderID:      "o-1",
		UserID:       "u-1",
		ProductID:    "p-1",
		SellerID:     "s-1",
		ProductType:  Digital,
		ProductPrice: 500,
		ProductTitle: "Game",
		LicenseID:    "lic-1",
	}
}

func TestNewLiftsIdempotencyKey(t *testing.T) {
	p := purchase()
	env, err := New(BillingOrderCreated, "inventory", p.OrderID, p)
	require.NoError(t, err)

	assert.Equal(t, ExchangeBilling, env.Exchange)
	assert.Equal(t, KeyOrdersCreated, env.RoutingKey)
	assert.Equal(t, p.UUID, env.IdempotencyKey)
	assert.Equal(t, "o-1", env.CorrelationID)
	assert.NotEmpty(t, env.EventID)

	plain, err := New(StoreOrderCreated, "orders", "o-1", OrderCreated{OrderID: "o-1", UserID: "u", ProductID: "p"})
	require.NoError(t, err)
	assert.Empty(t, plain.IdempotencyKey)
}

func TestRouteTopic(t *testing.T) {
	assert.Equal(t, "billing_events.orders.created", BillingOrderCreated.Topic())
	assert.Equal(t, "library_events.orders.created", LibraryOrderCreated.Topic())
	assert.NotEqual(t, BillingOrderCreated.Topic(), LibraryOrderCreated.Topic())

	queues := map[string]bool{}
	for _, b := range Bindings() {
		assert.False(t, queues[b.Queue], "duplicate queue %s", b.Queue)
		queues[b.Queue] = true
	}
	assert.Len(t, queues, 8)
}

func TestDecodeBilling(t *testing.T) {
	p := purchase()
	env, err := New(BillingOrderCreated, "inventory", p.OrderID, p)
	require.NoError(t, err)

	ev, err := DecodeBilling(env)
	require.NoError(t, err)
	got, ok := ev.(Purchase)
	require.True(t, ok)
	assert.Equal(t, p, got)

	t.Run("compensation without uuid is malformed", func(t *testing.T) {
		env, err := New(BillingOrderUpdated, "orders", "o-1", OrderUpdated{OrderID: "o-1", Status: StatusCancelled})
		require.NoError(t, err)
		_, err = DecodeBilling(env)
		assert.ErrorIs(t, err, kafkax.ErrMalformed)
	})

	t.Run("user created", func(t *testing.T) {
		env, err := New(BillingUserCreated, "users", "", UserCreated{UserID: "u-9"})
		require.NoError(t, err)
		ev, err := DecodeBilling(env)
		require.NoError(t, err)
		assert.Equal(t, UserCreated{UserID: "u-9"}, ev)
	})

	t.Run("wrong exchange", func(t *testing.T) {
		env, err := New(LibraryOrderCreated, "billing", p.OrderID, p)
		require.NoError(t, err)
		_, err = DecodeBilling(env)
		assert.ErrorIs(t, err, ErrUnknownRoute)
		assert.ErrorIs(t, err, kafkax.ErrMalformed)
	})
}

func TestDecodeRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Purchase)
	}{
		{name: "bad uuid", mutate: func(p *Purchase) { p.UUID = "not-a-uuid" }},
		{name: "missing license", mutate: func(p *Purchase) { p.LicenseID = "" }},
		{name: "unknown type", mutate: func(p *Purchase) { p.ProductType = "service" }},
		{name: "negative price", mutate: func(p *Purchase) { p.ProductPrice = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := purchase()
			tt.mutate(&p)
			env, err := New(LibraryOrderCreated, "billing", p.OrderID, p)
			require.NoError(t, err)
			_, err = DecodeLibrary(env)
			assert.ErrorIs(t, err, kafkax.ErrMalformed)
		})
	}
}

func TestDecodeStoreAndOrders(t *testing.T) {
	env, err := New(StoreOrderUpdated, "billing", "o-1", OrderUpdated{OrderID: "o-1", Status: "shipped"})
	require.NoError(t, err)
	_, err = DecodeStore(env)
	assert.ErrorIs(t, err, kafkax.ErrMalformed)

	upd := OrderUpdated{OrderID: "o-1", Status: StatusDone, Comment: ReasonGranted, Price: Price(0)}
	env, err = New(OrdersOrderUpdated, "library", "o-1", upd)
	require.NoError(t, err)
	got, err := DecodeOrders(env)
	require.NoError(t, err)
	require.NotNil(t, got.Price)
	assert.Equal(t, int64(0), *got.Price)

	env.Payload = json.RawMessage(`{"orderId":`)
	_, err = DecodeOrders(env)
	assert.ErrorIs(t, err, kafkax.ErrMalformed)
}

func TestHandlerRejectsGarbage(t *testing.T) {
	called := false
	h := Handler(func(context.Context, Envelope) error {
		called = true
		return nil
	})

	err := h(context.Background(), kafkago.Message{Value: []byte("{not json")})
	assert.ErrorIs(t, err, kafkax.ErrMalformed)

	err = h(context.Background(), kafkago.Message{Value: []byte(`{"event_id":"x"}`)})
	assert.ErrorIs(t, err, kafkax.ErrMalformed)
	assert.False(t, called)

	env, err := New(StoreOrderCreated, "orders", "o-1", OrderCreated{OrderID: "o-1", UserID: "u", ProductID: "p"})
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), kafkago.Message{Value: b}))
	assert.True(t, called)
}

func TestPurchaseCancelledCarriesFields(t *testing.T) {
	p := purchase()
	key := uuid.NewString()
	u := p.Cancelled(key, ReasonInsufficientFunds)

	assert.Equal(t, key, u.UUID)
	assert.Equal(t, StatusCancelled, u.Status)
	assert.Equal(t, p.LicenseID, u.LicenseID)
	require.NotNil(t, u.Price)
	assert.Equal(t, p.ProductPrice, *u.Price)
	assert.Equal(t, p.UUID, p.Updated(StatusDone, ReasonGranted).UUID)
}
