package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/StepIgor/otus-final/internal/events"
)

// Outbox records enqueued envelopes in memory.
type Outbox struct {
	mu   sync.Mutex
	envs []events.Envelope
	Err  error
}

func (o *Outbox) Enqueue(_ context.Context, envs ...events.Envelope) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.envs = append(o.envs, envs...)
	return nil
}

func (o *Outbox) All() []events.Envelope {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]events.Envelope(nil), o.envs...)
}

// Routed returns the envelopes enqueued for route, oldest first.
func (o *Outbox) Routed(route events.Route) []events.Envelope {
	var out []events.Envelope
	for _, env := range o.All() {
		if env.Route() == route {
			out = append(out, env)
		}
	}
	return out
}

// Drain returns everything recorded so far and forgets it.
func (o *Outbox) Drain() []events.Envelope {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.envs
	o.envs = nil
	return out
}

func Payload[T any](t testing.TB, env events.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}
