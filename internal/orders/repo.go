package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StepIgor/otus-final/internal/postgres"
)

const orderColumns = `id::text, user_id, product_id, COALESCE(seller_id, ''), COALESCE(license_id, ''), price,
	status, comment, client_request_id, created_at, updated_at`

type Repo struct{ DB *pgxpool.Pool }

func NewRepo(db *pgxpool.Pool) *Repo { return &Repo{DB: db} }

func (r *Repo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.WithTx(ctx, r.DB, fn)
}

func (r *Repo) Create(ctx context.Context, o Order) error {
	_, err := postgres.Q(ctx, r.DB).Exec(ctx, `
		INSERT INTO orders (id, user_id, product_id, status, comment, client_request_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		o.ID, o.UserID, o.ProductID, string(o.Status), o.Comment, o.ClientRequestID, o.CreatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return ErrDuplicateOrder
	}
	return err
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *Repo) GetForUpdate(ctx context.Context, id string) (Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repo) get(ctx context.Context, sql, id string) (Order, error) {
	o, err := scanOrder(postgres.Q(ctx, r.DB).QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) || postgres.IsInvalidUUID(err) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *Repo) Update(ctx context.Context, o Order) error {
	ct, err := postgres.Q(ctx, r.DB).Exec(ctx, `
		UPDATE orders SET product_id = $2, seller_id = NULLIF($3, ''), license_id = NULLIF($4, ''), price = $5,
			status = $6, comment = $7, updated_at = $8
		WHERE id = $1`,
		o.ID, o.ProductID, o.SellerID, o.LicenseID, o.Price, string(o.Status), o.Comment, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := postgres.Q(ctx, r.DB).Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &o.SellerID, &o.LicenseID, &o.Price,
		&o.Status, &o.Comment, &o.ClientRequestID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}
