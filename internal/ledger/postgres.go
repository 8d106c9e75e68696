package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StepIgor/otus-final/internal/postgres"
)

const entryColumns = `id::text, user_id, type, amount, COALESCE(order_id, ''), description, created_at`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.WithTx(ctx, s.pool, fn)
}

func (s *PostgresStore) LockUser(ctx context.Context, userID string) error {
	return postgres.LockKey(ctx, "ledger:"+userID)
}

func (s *PostgresStore) Entry(ctx context.Context, id string) (Entry, bool, error) {
	row := postgres.Q(ctx, s.pool).QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id)
	return scanOne(row)
}

func (s *PostgresStore) Decided(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := postgres.Q(ctx, s.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_decisions WHERE idempotency_key = $1)`, key,
	).Scan(&ok)
	return ok, err
}

func (s *PostgresStore) RecordDecision(ctx context.Context, d Decision) error {
	_, err := postgres.Q(ctx, s.pool).Exec(ctx, `
		INSERT INTO ledger_decisions (idempotency_key, order_id, outcome) VALUES ($1, $2, $3)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		d.Key, d.OrderID, d.Outcome,
	)
	return err
}

func (s *PostgresStore) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := postgres.Q(ctx, s.pool).QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type = 'PURCHASE' THEN -amount ELSE amount END), 0)::bigint
		FROM ledger_entries WHERE user_id = $1`, userID,
	).Scan(&balance)
	return balance, err
}

func (s *PostgresStore) Insert(ctx context.Context, e Entry) (bool, error) {
	ct, err := postgres.Q(ctx, s.pool).Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, type, amount, order_id, description)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT DO NOTHING`,
		e.ID, e.UserID, string(e.Type), e.Amount, e.OrderID, e.Description,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PostgresStore) FindByOrder(ctx context.Context, orderID string, t EntryType) (Entry, bool, error) {
	row := postgres.Q(ctx, s.pool).QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE order_id = $1 AND type = $2`, orderID, string(t),
	)
	return scanOne(row)
}

func (s *PostgresStore) Entries(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := postgres.Q(ctx, s.pool).Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC, id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scan(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.OrderID, &e.Description, &e.CreatedAt)
	return e, err
}

func scanOne(row pgx.Row) (Entry, bool, error) {
	e, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}
