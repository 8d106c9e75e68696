package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
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

func (s *PostgresStore) LockHolder(ctx context.Context, productID, userID string) error {
	return postgres.LockKey(ctx, "inventory:"+productID+":"+userID)
}

func (s *PostgresStore) HeldBy(ctx context.Context, productID, userID string) (LicenseUnit, bool, error) {
	var u LicenseUnit
	err := postgres.Q(ctx, s.pool).QueryRow(ctx, `
		SELECT product_id, license_id, user_id, order_id, updated_at
		FROM licenses
		WHERE product_id = $1 AND user_id = $2`, productID, userID,
	).Scan(&u.ProductID, &u.LicenseID, &u.UserID, &u.OrderID, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LicenseUnit{}, false, nil
	}
	if err != nil {
		return LicenseUnit{}, false, err
	}
	return u, true, nil
}

func (s *PostgresStore) Product(ctx context.Context, productID string) (Product, error) {
	var p Product
	err := postgres.Q(ctx, s.pool).QueryRow(ctx,
		`SELECT id, seller_id, type, title, price FROM products WHERE id = $1`, productID,
	).Scan(&p.ID, &p.SellerID, &p.Type, &p.Title, &p.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// ClaimFree skips units locked by concurrent claims, so two orders never wait on the same row.
func (s *PostgresStore) ClaimFree(ctx context.Context, productID, userID, orderID string) (LicenseUnit, bool, error) {
	var u LicenseUnit
	err := postgres.Q(ctx, s.pool).QueryRow(ctx, `
		UPDATE licenses SET user_id = $2, order_id = $3, updated_at = NOW()
		WHERE (product_id, license_id) = (
			SELECT product_id, license_id FROM licenses
			WHERE product_id = $1 AND user_id IS NULL
			ORDER BY license_id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING product_id, license_id, user_id, order_id, updated_at`,
		productID, userID, orderID,
	).Scan(&u.ProductID, &u.LicenseID, &u.UserID, &u.OrderID, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LicenseUnit{}, false, nil
	}
	if err != nil {
		return LicenseUnit{}, false, err
	}
	return u, true, nil
}

func (s *PostgresStore) Release(ctx context.Context, u LicenseUnit) (bool, error) {
	ct, err := postgres.Q(ctx, s.pool).Exec(ctx, `
		UPDATE licenses SET user_id = NULL, order_id = NULL, updated_at = NOW()
		WHERE product_id = $1 AND license_id = $2 AND user_id = $3 AND order_id = $4`,
		u.ProductID, u.LicenseID, u.UserID, u.OrderID,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// AddProduct upserts a catalog row and its license units. Existing units keep their holder.
func (s *PostgresStore) AddProduct(ctx context.Context, p Product, licenseIDs ...string) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := postgres.Q(ctx, s.pool)
		if _, err := q.Exec(ctx, `
			INSERT INTO products (id, seller_id, type, title, price) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET seller_id = EXCLUDED.seller_id, type = EXCLUDED.type,
				title = EXCLUDED.title, price = EXCLUDED.price`,
			p.ID, p.SellerID, string(p.Type), p.Title, p.Price,
		); err != nil {
			return err
		}
		for _, id := range licenseIDs {
			if _, err := q.Exec(ctx,
				`INSERT INTO licenses (product_id, license_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, p.ID, id,
			); err != nil {
				return err
			}
		}
		return nil
	})
}
