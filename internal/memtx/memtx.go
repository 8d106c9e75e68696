// Package memtx gives in-memory stores the transaction shape of the Postgres ones: one
// transaction at a time, nested calls join, and a failed transaction restores a snapshot.
package memtx

import (
	"context"
	"sync"
)

type Guard struct {
	mu sync.Mutex
}

type txKey struct{}

// Do runs fn as one transaction. snapshot is called after the guard is held and returns the
// function that puts the state back if fn fails.
func (g *Guard) Do(ctx context.Context, snapshot func() (restore func()), fn func(ctx context.Context) error) error {
	if g.InTx(ctx) {
		return fn(ctx)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	restore := snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, g)); err != nil {
		restore()
		return err
	}
	return nil
}

func (g *Guard) InTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Guard)
	return owner == g
}
