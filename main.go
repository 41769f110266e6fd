package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"dinein-service/internal/config"
	"dinein-service/internal/db"
	"dinein-service/internal/dining"
	httpapi "dinein-service/internal/http"
	"dinein-service/internal/http/handlers"
	"dinein-service/internal/logger"
	"dinein-service/internal/promptpay"
	"dinein-service/internal/qr"
	"dinein-service/internal/queue"
	"dinein-service/internal/receipt"
	"dinein-service/internal/storage"
	"dinein-service/internal/store/memory"
	"dinein-service/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	var renderer *qr.Renderer
	if cfg.ObjectStore.Enabled() {
		objects, err := storage.NewObjectStore(ctx, cfg.ObjectStore)
		if err != nil {
			log.Fatal("object store init failed", zap.Error(err))
		}
		log.Info("qr images published to object store", zap.String("bucket", cfg.ObjectStore.Bucket))
		renderer = qr.NewRenderer(objects)
	} else {
		renderer = qr.NewRenderer(nil)
	}

	queueClient := connectQueue(cfg, log)
	if queueClient != nil {
		defer queueClient.Close()
	}

	opts := dining.Options{
		ServiceChargeRate: dining.RateFromPercent(cfg.ServiceChargePercent),
		ClientBaseURL:     cfg.ClientBaseURL,
		PromptPayID:       cfg.PromptPayID,
		Encoder:           promptpay.Encoder{},
		Renderer:          renderer,
		Logger:            log.Named("dining"),
	}
	if queueClient != nil {
		opts.Publisher = queue.NewEventPublisher(queueClient)
	}
	svc := dining.NewService(store, opts)

	if queueClient != nil && cfg.RabbitMQWorkerMode == "daemon" {
		log.Info("payment callback consumer enabled", zap.String("queue", queue.PaymentCallbacksQueue))
		go func() {
			err := queueClient.ConsumeWithRetry(ctx, queue.PaymentCallbacksQueue, queue.PaymentCallbackHandler(svc),
				cfg.CallbackMaxRetries, cfg.CallbackRetryDelay, log.Named("callbacks"))
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("payment callback consumer stopped", zap.Error(err))
			}
		}()
	}

	h := &handlers.Handler{
		Service: svc,
		Logger:  log,
		Config:  cfg,
		Receipt: receipt.Header{
			RestaurantName: cfg.RestaurantName,
			Phone:          cfg.RestaurantPhone,
			TimeZone:       loadLocation(cfg.ReceiptTimeZone, log),
		},
	}
	if queueClient != nil {
		h.Queue = queueClient
	}

	apiServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewRouter(h, log, cfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("dine-in service listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(ctxShutdown); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
}

// openStore connects to Postgres and applies the schema, or falls back to a seeded in-memory
// store when no database is configured outside production.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (dining.Store, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL is empty; using in-memory store", zap.Int("tables", cfg.SeedTables))
		mem := memory.New()
		mem.AddTables(int32(cfg.SeedTables))
		for _, item := range memory.DefaultMenu() {
			mem.PutMenuItem(item)
		}
		return mem, func() {}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		log.Fatal("database migration failed", zap.Error(err))
	}
	return postgres.New(pool), pool.Close
}

// connectQueue returns nil when RabbitMQ is not configured. Outside production a broker that
// cannot be reached only disables events and the callback consumer.
func connectQueue(cfg config.Config, log *zap.Logger) *queue.Client {
	if cfg.RabbitMQURL == "" {
		log.Info("rabbitmq disabled (RABBITMQ_URL is empty)")
		return nil
	}
	qc, err := queue.New(cfg.RabbitMQURL)
	if err == nil {
		if err = queue.EnsureTopology(qc); err != nil {
			_ = qc.Close()
		}
	}
	if err != nil {
		if cfg.IsProduction() {
			log.Fatal("rabbitmq setup failed", zap.Error(err))
		}
		log.Warn("rabbitmq setup failed; continuing without events", zap.Error(err))
		return nil
	}
	log.Info("rabbitmq enabled", zap.String("eventsExchange", queue.EventsExchange))
	return qc
}

func loadLocation(name string, log *zap.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("unknown receipt timezone, using UTC", zap.String("tz", name), zap.Error(err))
		return time.UTC
	}
	return loc
}
