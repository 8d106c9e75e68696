// Package app wires the pieces every service binary shares: config, logger, database,
// broker producer, outbox relay, consumers and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/StepIgor/otus-final/internal/config"
	"github.com/StepIgor/otus-final/internal/events"
	"github.com/StepIgor/otus-final/internal/httpx"
	kafkax "github.com/StepIgor/otus-final/internal/kafka"
	"github.com/StepIgor/otus-final/internal/logx"
	"github.com/StepIgor/otus-final/internal/metrics"
	"github.com/StepIgor/otus-final/internal/outbox"
	"github.com/StepIgor/otus-final/internal/postgres"
	"github.com/StepIgor/otus-final/migrations"
)

type Runtime struct {
	Config   config.Config
	Log      *zap.Logger
	Metrics  *metrics.Set
	DB       *pgxpool.Pool
	Producer *kafkax.Producer
	Outbox   *outbox.Store
	Router   *chi.Mux

	consumers []consumer
}

type consumer struct {
	c *kafkax.Consumer
	h kafkax.Handler
}

// New loads config, connects to Postgres and migrates component's schema.
func New(ctx context.Context, service, component string) (*Runtime, error) {
	cfg := config.Load(service)
	log, err := logx.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := migrations.Apply(ctx, db, component); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer, component)
	return &Runtime{
		Config:   cfg,
		Log:      log,
		Metrics:  m,
		DB:       db,
		Producer: kafkax.NewProducer(cfg.KafkaBrokers),
		Outbox:   outbox.NewStore(db),
		Router:   httpx.NewRouter(log, m),
	}, nil
}

// Consume subscribes fn to every binding on its own consumer group.
func (rt *Runtime) Consume(fn func(ctx context.Context, env events.Envelope) error, bindings ...events.Binding) {
	for _, b := range bindings {
		c := kafkax.NewConsumer(rt.Config.KafkaBrokers, b.Queue, b.Route.Topic(), rt.Config.Consumer, rt.Producer, rt.Log, rt.Metrics)
		rt.consumers = append(rt.consumers, consumer{c: c, h: events.Handler(fn)})
	}
}

// Run blocks until ctx is done or a component fails, then shuts everything down.
func (rt *Runtime) Run(ctx context.Context) error {
	defer rt.DB.Close()
	defer func() { _ = rt.Log.Sync() }()
	defer func() {
		if err := rt.Producer.Close(); err != nil {
			rt.Log.Warn("producer close", zap.Error(err))
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	relay := outbox.NewRelay(rt.DB, rt.Producer, rt.Config.Outbox, rt.Log, rt.Metrics)
	g.Go(func() error { return relay.Run(ctx) })

	for _, c := range rt.consumers {
		g.Go(func() error { return c.c.Start(ctx, c.h) })
	}

	srv := &http.Server{Addr: rt.Config.HTTPAddr, Handler: rt.Router, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		rt.Log.Info("http listening", zap.String("addr", rt.Config.HTTPAddr), zap.Int("consumers", len(rt.consumers)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		rt.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
