package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"github.com/StepIgor/otus-final/internal/events"
	kafkax "github.com/StepIgor/otus-final/internal/kafka"
	"github.com/StepIgor/otus-final/internal/postgres"
)

type Record struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

// Store writes envelopes into the outbox table of the component's own database. Enqueue joins
// the transaction carried by ctx, so events commit or roll back with the local state change.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Enqueue(ctx context.Context, envs ...events.Envelope) error {
	q := postgres.Q(ctx, s.pool)
	for _, env := range envs {
		rec, err := NewRecord(env)
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx,
			`INSERT INTO outbox (event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`,
			rec.EventID, rec.Topic, rec.Key, []byte(rec.Payload),
		); err != nil {
			return fmt.Errorf("enqueue %s: %w", rec.Topic, err)
		}
	}
	return nil
}

// NewRecord lays an envelope out as an outbox row: topic from the route, key from the order.
func NewRecord(env events.Envelope) (Record, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return Record{}, fmt.Errorf("encode envelope: %w", err)
	}
	return Record{
		EventID: env.EventID,
		Topic:   env.Route().Topic(),
		Key:     env.CorrelationID,
		Payload: data,
	}, nil
}

// Message converts a stored record into the Kafka message the relay publishes.
func (r Record) Message() kafka.Message {
	var env struct {
		RoutingKey string `json:"routing_key"`
	}
	_ = json.Unmarshal(r.Payload, &env)
	return kafka.Message{
		Topic: r.Topic,
		Key:   []byte(r.Key),
		Value: r.Payload,
		Time:  r.CreatedAt,
		Headers: []kafka.Header{
			{Key: kafkax.HeaderEventType, Value: []byte(env.RoutingKey)},
			{Key: "x-event-id", Value: []byte(r.EventID)},
		},
	}
}
