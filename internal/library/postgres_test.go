package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/StepIgor/otus-final/internal/outbox"
	"github.com/StepIgor/otus-final/internal/testutil"
)

func TestPostgresGrantIsConflictSafe(t *testing.T) {
	pool := testutil.NewTestPool(t, "test_library", "library", "library")
	store := NewPostgresStore(pool)
	svc := NewService(store, outbox.NewStore(pool), zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, svc.HandlePurchase(ctx, paid("o-1")))
	require.NoError(t, svc.HandlePurchase(ctx, paid("o-1")))

	owned, err := svc.List(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "lic-1", owned[0].LicenseID)

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE sent_at IS NULL`).Scan(&pending))
	assert.Equal(t, 2, pending)
}
