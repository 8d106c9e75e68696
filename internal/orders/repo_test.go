package orders

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/StepIgor/otus-final/internal/clock"
	"github.com/StepIgor/otus-final/internal/events"
	"github.com/StepIgor/otus-final/internal/outbox"
	"github.com/StepIgor/otus-final/internal/testutil"
)

func newPostgresService(t *testing.T) (*Service, *Repo) {
	t.Helper()
	pool := testutil.NewTestPool(t, "test_orders", "orders", "orders")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := NewRepo(pool)
	svc := NewService(repo, NewRedisClaims(rdb, time.Hour), outbox.NewStore(pool), clock.NewSystem(), zaptest.NewLogger(t))
	return svc, repo
}

func TestRepoLifecycle(t *testing.T) {
	svc, repo := newPostgresService(t)
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: "u-1", ProductID: "p-1", ClientRequestID: "req-1"})
	require.NoError(t, err)

	require.NoError(t, svc.Apply(ctx, events.OrderUpdated{
		OrderID: res.Order.ID, SellerID: "s-1", LicenseID: "box-1", Price: events.Price(300),
		Status: events.StatusPending, Comment: events.ReasonAwaitingSeller,
	}))
	declined, err := svc.Decline(ctx, "s-1", res.Order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, declined.Status)

	got, err := repo.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "box-1", got.LicenseID)
	require.NotNil(t, got.Price)
	assert.Equal(t, int64(300), *got.Price)

	list, err := svc.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	err = repo.Create(ctx, got)
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	_, err = repo.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	require.NoError(t, svc.Apply(ctx, events.OrderUpdated{OrderID: "not-a-uuid", Status: events.StatusDone}))
}
