package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	notifconsumer "github.com/aquarent/aquarent-backend/internal/consumers/notifications"
	territoryconsumer "github.com/aquarent/aquarent-backend/internal/consumers/territory"
	"github.com/aquarent/aquarent-backend/internal/notifications"
	"github.com/aquarent/aquarent-backend/internal/orders"
	"github.com/aquarent/aquarent-backend/internal/products"
	"github.com/aquarent/aquarent-backend/internal/rentals"
	"github.com/aquarent/aquarent-backend/internal/territories"
	"github.com/aquarent/aquarent-backend/internal/users"
	"github.com/aquarent/aquarent-backend/pkg/config"
	"github.com/aquarent/aquarent-backend/pkg/db"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/metrics"
	"github.com/aquarent/aquarent-backend/pkg/migrate"
	"github.com/aquarent/aquarent-backend/pkg/outbox"
	"github.com/aquarent/aquarent-backend/pkg/outbox/idempotency"
	"github.com/aquarent/aquarent-backend/pkg/razorpay"
	"github.com/aquarent/aquarent-backend/pkg/redis"
)

const idempotencyTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis client", err)
		}
	}()

	gateway, err := razorpay.NewClient(context.Background(), cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap payment gateway", err)
		os.Exit(1)
	}

	manager, err := idempotency.NewManager(redisClient, idempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to build idempotency manager", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	outboxService := outbox.NewService(outboxRepo, logg)
	dlqRepo := outbox.NewDLQRepository(conn)

	userRepo := users.NewRepository(conn)
	productRepo := products.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	rentalRepo := rentals.NewRepository(conn)
	notificationRepo := notifications.NewRepository(conn)
	territoryRepo := territories.NewRepository(conn)

	territoryService, err := territories.NewService(territories.ServiceParams{
		Repo:      territoryRepo,
		UserRepo:  userRepo,
		Tx:        dbClient,
		Outbox:    outboxService,
		Logger:    logg,
		BatchSize: cfg.Reassign.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build territory service", err)
		os.Exit(1)
	}

	rentalService, err := rentals.NewService(rentals.ServiceParams{
		Repo:        rentalRepo,
		OrderRepo:   orderRepo,
		ProductRepo: productRepo,
		Gateway:     gateway,
		Tx:          dbClient,
		Outbox:      outboxService,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build rental service", err)
		os.Exit(1)
	}

	notificationConsumer, err := notifconsumer.NewConsumer(notificationRepo, manager, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build notification consumer", err)
		os.Exit(1)
	}
	reassignConsumer, err := territoryconsumer.NewConsumer(territoryService, manager, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build territory consumer", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	workerMetrics := metrics.NewWorkerMetrics(registry)

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		DLQ:        dlqRepo,
		Consumers:  []eventConsumer{notificationConsumer, reassignConsumer},
		Rentals:    rentalService,
		Metrics:    workerMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
	})

	go serveMetrics(ctx, cfg.App.Port, registry, logg)

	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

func serveMetrics(ctx context.Context, port string, registry *prometheus.Registry, logg *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "metrics server stopped unexpectedly", err)
	}
}
