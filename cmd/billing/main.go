package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/StepIgor/otus-final/internal/app"
	"github.com/StepIgor/otus-final/internal/events"
	"github.com/StepIgor/otus-final/internal/httpx"
	"github.com/StepIgor/otus-final/internal/ledger"
	"github.com/StepIgor/otus-final/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, "billing-svc", "billing")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	rdb := redisx.New(rt.Config.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		rt.Log.Warn("redis unreachable at start-up, balances served from the ledger", zap.Error(err))
	}

	if !rt.Config.SerializePerUser {
		rt.Log.Warn("per-user serialization disabled: concurrent purchases may overdraw a balance")
	}
	svc := ledger.NewService(
		ledger.NewPostgresStore(rt.DB),
		rt.Outbox,
		ledger.NewRedisCache(rdb, rt.Config.BalanceCacheTTL),
		ledger.Options{SignupBonus: rt.Config.SignupBonus, SerializePerUser: rt.Config.SerializePerUser},
		rt.Log,
	)
	(&httpx.BillingHandler{Service: svc, Log: rt.Log}).Register(rt.Router)
	rt.Consume(svc.Handle, events.QueueBillingOrderCreated, events.QueueBillingOrderUpdated, events.QueueBillingUserCreated)

	if err := rt.Run(ctx); err != nil {
		rt.Log.Fatal("billing service stopped", zap.Error(err))
	}
}
