package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/StepIgor/otus-final/internal/config"
	"github.com/StepIgor/otus-final/internal/metrics"
)

type fakeReader struct {
	mu      sync.Mutex
	pending []kafka.Message
	commits []kafka.Message
	closed  bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		m := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, msgs...)
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeReader) committed() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Message(nil), f.commits...)
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail int
}

func (f *fakePublisher) Publish(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("broker down")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func testConsumer(t *testing.T, r reader, dead Publisher, attempts int) (*Consumer, *metrics.Set) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry(), "test")
	cfg := config.ConsumerConfig{
		Workers:        2,
		MaxAttempts:    attempts,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}
	return newConsumer(r, "billing_order_created", cfg, dead, zaptest.NewLogger(t), m), m
}

func msg(partition int, offset int64) kafka.Message {
	return kafka.Message{
		Topic:     "billing_events.orders.created",
		Partition: partition,
		Offset:    offset,
		Key:       []byte("order-1"),
		Value:     []byte(`{}`),
	}
}

func TestProcess(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		c, m := testConsumer(t, &fakeReader{}, &fakePublisher{}, 3)
		calls := 0
		err := c.process(context.Background(), msg(0, 1), func(context.Context, kafka.Message) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1.0, promtest.ToFloat64(m.Messages.WithLabelValues("billing_order_created", outcomeOK)))
	})

	t.Run("malformed is discarded without retry", func(t *testing.T) {
		dead := &fakePublisher{}
		c, m := testConsumer(t, &fakeReader{}, dead, 3)
		calls := 0
		err := c.process(context.Background(), msg(0, 1), func(context.Context, kafka.Message) error {
			calls++
			return Malformed(errors.New("bad json"))
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, dead.msgs)
		assert.Equal(t, 1.0, promtest.ToFloat64(m.Messages.WithLabelValues("billing_order_created", outcomeDiscarded)))
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		c, _ := testConsumer(t, &fakeReader{}, &fakePublisher{}, 5)
		calls := 0
		err := c.process(context.Background(), msg(0, 1), func(context.Context, kafka.Message) error {
			calls++
			if calls < 3 {
				return errors.New("deadlock detected")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausted retries go to the dead letter topic", func(t *testing.T) {
		dead := &fakePublisher{fail: 1}
		c, m := testConsumer(t, &fakeReader{}, dead, 3)
		calls := 0
		err := c.process(context.Background(), msg(1, 7), func(context.Context, kafka.Message) error {
			calls++
			return errors.New("db unavailable")
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		require.Len(t, dead.msgs, 1)

		parked := dead.msgs[0]
		assert.Equal(t, "dlq.billing_order_created", parked.Topic)
		assert.Equal(t, []byte("order-1"), parked.Key)
		headers := map[string]string{}
		for _, h := range parked.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, "billing_events.orders.created", headers[HeaderOriginalTopic])
		assert.Equal(t, "db unavailable", headers[HeaderError])
		assert.Equal(t, "3", headers[HeaderAttempts])
		assert.Equal(t, 1.0, promtest.ToFloat64(m.Messages.WithLabelValues("billing_order_created", outcomeDeadLettered)))
	})

	t.Run("cancelled context leaves message uncommitted", func(t *testing.T) {
		dead := &fakePublisher{}
		c, _ := testConsumer(t, &fakeReader{}, dead, 0)
		ctx, cancel := context.WithCancel(context.Background())
		err := c.process(ctx, msg(0, 1), func(context.Context, kafka.Message) error {
			cancel()
			return errors.New("connection reset")
		})
		require.Error(t, err)
		assert.Empty(t, dead.msgs)
	})
}

func TestStartCommitsHandledMessages(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{msg(0, 1), msg(1, 1), msg(0, 2), msg(1, 2)}}
	c, _ := testConsumer(t, r, &fakePublisher{}, 3)

	var mu sync.Mutex
	seen := map[int][]int64{}
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen[m.Partition] = append(seen[m.Partition], m.Offset)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	require.Eventually(t, func() bool { return len(r.committed()) == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2}, seen[0])
	assert.Equal(t, []int64{1, 2}, seen[1])
	assert.True(t, r.closed)
}

func TestDeadLetterTopic(t *testing.T) {
	assert.Equal(t, "dlq.store_order_created", DeadLetterTopic("store_order_created"))
}
