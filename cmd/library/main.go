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
	"github.com/StepIgor/otus-final/internal/library"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, "library-svc", "library")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	svc := library.NewService(library.NewPostgresStore(rt.DB), rt.Outbox, rt.Log)
	(&httpx.LibraryHandler{Service: svc, Log: rt.Log}).Register(rt.Router)
	rt.Consume(svc.Handle, events.QueueLibraryOrderCreated, events.QueueLibraryOrderCompleted)

	if err := rt.Run(ctx); err != nil {
		rt.Log.Fatal("library service stopped", zap.Error(err))
	}
}
