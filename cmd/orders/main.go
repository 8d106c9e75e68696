package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/StepIgor/otus-final/internal/app"
	"github.com/StepIgor/otus-final/internal/clock"
	"github.com/StepIgor/otus-final/internal/events"
	"github.com/StepIgor/otus-final/internal/httpx"
	"github.com/StepIgor/otus-final/internal/orders"
	"github.com/StepIgor/otus-final/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, "orders-svc", "orders")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	// Redis
	rdb := redisx.New(rt.Config.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		rt.Log.Warn("redis unreachable at start-up", zap.Error(err))
	}

	svc := orders.NewService(
		orders.NewRepo(rt.DB),
		orders.NewRedisClaims(rdb, rt.Config.OrderIdempotencyTTL),
		rt.Outbox,
		clock.NewSystem(),
		rt.Log,
	)
	(&httpx.OrdersHandler{Service: svc, Log: rt.Log}).Register(rt.Router)
	rt.Consume(svc.Handle, events.QueueOrdersOrderUpdated)

	if err := rt.Run(ctx); err != nil {
		rt.Log.Fatal("orders service stopped", zap.Error(err))
	}
}
