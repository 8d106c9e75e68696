package library

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StepIgor/otus-final/internal/postgres"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.WithTx(ctx, s.pool, fn)
}

func (s *PostgresStore) Exists(ctx context.Context, userID, productID, licenseID string) (bool, error) {
	var ok bool
	err := postgres.Q(ctx, s.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM library WHERE user_id = $1 AND product_id = $2 AND license_id = $3)`,
		userID, productID, licenseID,
	).Scan(&ok)
	return ok, err
}

func (s *PostgresStore) Grant(ctx context.Context, e Entitlement) (bool, error) {
	ct, err := postgres.Q(ctx, s.pool).Exec(ctx, `
		INSERT INTO library (user_id, product_id, license_id, order_id) VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (user_id, product_id, license_id) DO NOTHING`,
		e.UserID, e.ProductID, e.LicenseID, e.OrderID,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]Entitlement, error) {
	rows, err := postgres.Q(ctx, s.pool).Query(ctx, `
		SELECT user_id, product_id, license_id, COALESCE(order_id, ''), created_at
		FROM library WHERE user_id = $1 ORDER BY created_at DESC, product_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entitlement
	for rows.Next() {
		var e Entitlement
		if err := rows.Scan(&e.UserID, &e.ProductID, &e.LicenseID, &e.OrderID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
