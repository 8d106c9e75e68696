package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/StepIgor/otus-final/internal/config"
	kafkax "github.com/StepIgor/otus-final/internal/kafka"
	"github.com/StepIgor/otus-final/internal/metrics"
	"github.com/StepIgor/otus-final/internal/postgres"
)

// Relay drains the outbox to the broker. Rows are locked with SKIP LOCKED, so several
// instances of one service can relay side by side. Delivery is at-least-once.
type Relay struct {
	pool    *pgxpool.Pool
	pub     kafkax.Publisher
	cfg     config.OutboxConfig
	log     *zap.Logger
	metrics *metrics.Set
}

func NewRelay(pool *pgxpool.Pool, pub kafkax.Publisher, cfg config.OutboxConfig, log *zap.Logger, m *metrics.Set) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Relay{pool: pool, pub: pub, cfg: cfg, log: log.With(zap.String("component", "outbox")), metrics: m}
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()
	for {
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.log.Warn("outbox flush failed", zap.Error(err))
				break
			}
			if n < r.cfg.BatchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Flush publishes one batch and marks it sent. It returns the number of records published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var sent []Record
	err := postgres.WithTx(ctx, r.pool, func(txCtx context.Context) error {
		recs, err := fetchPending(txCtx, r.pool, r.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		msgs := make([]kafka.Message, 0, len(recs))
		ids := make([]int64, 0, len(recs))
		for _, rec := range recs {
			msgs = append(msgs, rec.Message())
			ids = append(ids, rec.ID)
		}
		if err := r.pub.Publish(txCtx, msgs...); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		if _, err := postgres.Q(txCtx, r.pool).Exec(txCtx, `UPDATE outbox SET sent_at = NOW() WHERE id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		sent = recs
		return nil
	})
	if err != nil {
		return 0, err
	}
	if r.metrics != nil {
		for _, rec := range sent {
			r.metrics.OutboxPublished.WithLabelValues(rec.Topic).Inc()
		}
	}
	return len(sent), nil
}

func fetchPending(ctx context.Context, pool *pgxpool.Pool, limit int) ([]Record, error) {
	rows, err := postgres.Q(ctx, pool).Query(ctx, `
SELECT id, event_id, topic, key, payload, created_at, sent_at
FROM outbox
WHERE sent_at IS NULL
ORDER BY id
LIMIT $1
FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
