package kafka

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/StepIgor/otus-final/internal/config"
	"github.com/StepIgor/otus-final/internal/metrics"
)

// Handler must return nil only when the message was applied and its offset may be committed.
// Errors wrapping ErrMalformed are dropped; any other error is retried.
type Handler func(ctx context.Context, m kafka.Message) error

// Publisher is what the consumer needs to dead-letter a message.
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	HeaderEventType      = "x-event-type"
	HeaderOriginalTopic  = "x-original-topic"
	HeaderQueue          = "x-queue"
	HeaderError          = "x-error"
	HeaderAttempts       = "x-attempts"
	defaultBackoffInit   = 200 * time.Millisecond
	defaultBackoffMax    = 10 * time.Second
	laneBuffer           = 64
	outcomeOK            = "ok"
	outcomeDiscarded     = "discarded"
	outcomeDeadLettered  = "dead_lettered"
	outcomeCommitFailure = "commit_failed"
)

// DeadLetterTopic is where messages of queue land after exhausting retries.
func DeadLetterTopic(queue string) string { return "dlq." + queue }

type Consumer struct {
	r       reader
	queue   string
	dead    Publisher
	workers int
	cfg     config.ConsumerConfig
	log     *zap.Logger
	metrics *metrics.Set
}

// NewConsumer reads topic as consumer group queue. Offsets are committed manually after handling.
func NewConsumer(brokers []string, queue, topic string, cfg config.ConsumerConfig, dead Publisher, log *zap.Logger, m *metrics.Set) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        queue,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, queue, cfg, dead, log, m)
}

func newConsumer(r reader, queue string, cfg config.ConsumerConfig, dead Publisher, log *zap.Logger, m *metrics.Set) *Consumer {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = defaultBackoffInit
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	return &Consumer{
		r:       r,
		queue:   queue,
		dead:    dead,
		workers: workers,
		cfg:     cfg,
		log:     log.With(zap.String("queue", queue)),
		metrics: m,
	}
}

// Start blocks until ctx is cancelled or the reader fails. Messages of one partition are always
// handled by the same worker, so per-partition order and offset order are preserved.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, laneBuffer)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if err := c.process(ctx, m, h); err != nil {
					continue // shutting down; redelivered after restart
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					c.count(outcomeCommitFailure)
					c.log.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}(lanes[i])
	}
	defer func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// process returns an error only when the message must stay uncommitted.
func (c *Consumer) process(ctx context.Context, m kafka.Message, h Handler) error {
	start := time.Now()
	defer c.observe(start)

	attempts := 0
	op := func() (struct{}, error) {
		attempts++
		err := h(ctx, m)
		if errors.Is(err, ErrMalformed) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op, c.retryOptions(m)...)

	switch {
	case err == nil:
		c.count(outcomeOK)
		return nil
	case errors.Is(err, ErrMalformed):
		c.count(outcomeDiscarded)
		c.log.Warn("discarding malformed message", c.fields(m, attempts, err)...)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	}

	c.log.Error("retries exhausted, dead-lettering", c.fields(m, attempts, err)...)
	if err := c.deadLetter(ctx, m, err, attempts); err != nil {
		return err
	}
	c.count(outcomeDeadLettered)
	return nil
}

func (c *Consumer) retryOptions(m kafka.Message) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BackoffInitial
	b.MaxInterval = c.cfg.BackoffMax

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("handler failed, retrying",
				zap.Int64("offset", m.Offset),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	}
	if c.cfg.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(c.cfg.MaxAttempts)))
	}
	return opts
}

// deadLetter keeps trying until the DLQ write succeeds: committing past a message that is
// neither handled nor parked would lose it.
func (c *Consumer) deadLetter(ctx context.Context, m kafka.Message, cause error, attempts int) error {
	headers := append([]kafka.Header{}, m.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(m.Topic)},
		kafka.Header{Key: HeaderQueue, Value: []byte(c.queue)},
		kafka.Header{Key: HeaderError, Value: []byte(cause.Error())},
		kafka.Header{Key: HeaderAttempts, Value: []byte(strconv.Itoa(attempts))},
	)
	msg := kafka.Message{
		Topic:   DeadLetterTopic(c.queue),
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
		Time:    time.Now(),
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BackoffInitial
	b.MaxInterval = c.cfg.BackoffMax
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.dead.Publish(ctx, msg)
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(0))
	return err
}

func (c *Consumer) fields(m kafka.Message, attempts int, err error) []zap.Field {
	return []zap.Field{
		zap.String("topic", m.Topic),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
		zap.String("key", string(m.Key)),
		zap.Int("attempts", attempts),
		zap.Error(err),
	}
}

func (c *Consumer) count(outcome string) {
	if c.metrics != nil {
		c.metrics.Messages.WithLabelValues(c.queue, outcome).Inc()
	}
}

func (c *Consumer) observe(start time.Time) {
	if c.metrics != nil {
		c.metrics.HandleSeconds.WithLabelValues(c.queue).Observe(time.Since(start).Seconds())
	}
}
