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
	"github.com/StepIgor/otus-final/internal/inventory"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, "inventory-svc", "inventory")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	svc := inventory.NewService(inventory.NewPostgresStore(rt.DB), rt.Outbox, rt.Log)
	rt.Consume(svc.Handle, events.QueueStoreOrderCreated, events.QueueStoreOrderUpdated)

	if err := rt.Run(ctx); err != nil {
		rt.Log.Fatal("inventory service stopped", zap.Error(err))
	}
}
