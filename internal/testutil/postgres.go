package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/StepIgor/otus-final/migrations"
)

// NewTestPool connects to TEST_DATABASE_URL inside a schema of its own, applies the component's
// migrations there and empties tables plus the outbox. Packages run in parallel, so each passes
// a distinct schema. The test is skipped when no database is configured or reachable.
func NewTestPool(t *testing.T, schema, component string, tables ...string) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}
	if err := admin.Ping(ctx); err != nil {
		admin.Close()
		t.Skipf("postgres unreachable: %v", err)
	}
	_, err = admin.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+schema)
	admin.Close()
	require.NoError(t, err)

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.Apply(ctx, pool, component))
	TruncateAll(t, pool, append(tables, "outbox")...)
	return pool
}

func TruncateAll(t *testing.T, pool *pgxpool.Pool, tables ...string) {
	t.Helper()
	for _, table := range tables {
		_, err := pool.Exec(context.Background(), "TRUNCATE "+table+" CASCADE")
		require.NoError(t, err)
	}
}
