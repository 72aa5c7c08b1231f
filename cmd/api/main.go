package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/aquarent/aquarent-backend/api/routes"
	"github.com/aquarent/aquarent-backend/internal/notifications"
	"github.com/aquarent/aquarent-backend/internal/orders"
	"github.com/aquarent/aquarent-backend/internal/products"
	"github.com/aquarent/aquarent-backend/internal/rentals"
	"github.com/aquarent/aquarent-backend/internal/territories"
	"github.com/aquarent/aquarent-backend/internal/users"
	"github.com/aquarent/aquarent-backend/pkg/config"
	"github.com/aquarent/aquarent-backend/pkg/db"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/migrate"
	"github.com/aquarent/aquarent-backend/pkg/outbox"
	"github.com/aquarent/aquarent-backend/pkg/razorpay"
	"github.com/aquarent/aquarent-backend/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	conn := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)

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

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:        orderRepo,
		UserRepo:    userRepo,
		ProductRepo: productRepo,
		Territories: territoryService,
		Gateway:     gateway,
		Rentals:     rentalService,
		Tx:          dbClient,
		Outbox:      outboxService,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build order service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notificationRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build notification service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			ProductRepo:   productRepo,
			UserRepo:      userRepo,
			Orders:        orderService,
			Rentals:       rentalService,
			Territories:   territoryService,
			Notifications: notificationService,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "error shutting down api server", err)
		}
	}()

	logg.Info(ctx, "starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
