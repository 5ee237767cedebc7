package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_cart/checkout-pipeline/internal/config"
	"github.com/fjod/go_cart/checkout-pipeline/internal/consumer"
	"github.com/fjod/go_cart/checkout-pipeline/internal/discount"
	h "github.com/fjod/go_cart/checkout-pipeline/internal/http"
	"github.com/fjod/go_cart/checkout-pipeline/internal/lock"
	"github.com/fjod/go_cart/checkout-pipeline/internal/logger"
	"github.com/fjod/go_cart/checkout-pipeline/internal/metrics"
	"github.com/fjod/go_cart/checkout-pipeline/internal/orders"
	"github.com/fjod/go_cart/checkout-pipeline/internal/pricing"
	"github.com/fjod/go_cart/checkout-pipeline/internal/publisher"
	"github.com/fjod/go_cart/checkout-pipeline/internal/repository"
	"github.com/fjod/go_cart/checkout-pipeline/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("checkout-pipeline starting")

	if err := run(cfg, log); err != nil {
		log.Error("checkout-pipeline stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("checkout-pipeline stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	// Mongo: catalog, stock ledger, carts and discounts
	db, err := repository.OpenMongo(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Client().Disconnect(context.Background()); err != nil {
			log.Warn("failed to disconnect from MongoDB", "error", err)
		}
	}()
	if err := repository.CreateIndexes(ctx, db); err != nil {
		return err
	}
	log.Info("connected to MongoDB", "database", cfg.Mongo.Database)

	products := repository.NewProductRepository(db)
	carts := repository.NewCartRepository(db)
	discounts := repository.NewDiscountRepository(db)

	// Redis: product locks
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}
	log.Info("redis ping succeeded", "addr", cfg.RedisAddr)

	// Postgres: orders and the outbox
	orderRepo, err := orders.NewRepository(&cfg.Postgres)
	if err != nil {
		return err
	}
	defer orderRepo.Close()
	if err := orderRepo.RunMigrations(); err != nil {
		return err
	}
	log.Info("database migrations completed")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)

	discountService := discount.NewService(discounts, log.With("component", "discount"))
	checkoutService := service.NewCheckoutService(
		pricing.NewAggregator(products, discountService),
		lock.NewRedisLocker(redisClient),
		products,
		orderRepo,
		cfg.Checkout,
		log.With("component", "checkout"),
		service.WithMetrics(checkoutMetrics),
		service.WithDiscountUsage(discountService),
	)

	// Background workers
	var wg sync.WaitGroup
	workersCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	poller := publisher.NewOutboxPoller(orderRepo, log.With("component", "outbox"), cfg.KafkaOrderTopic, cfg.KafkaBrokers...)
	sweeper := publisher.NewReservationSweeper(checkoutService, log.With("component", "sweeper"),
		cfg.SweepInterval, cfg.OrderPendingTTL, cfg.ReservationOrphanGrace)
	cleaner := consumer.NewCartCleaner(carts, log.With("component", "cart-cleaner"), cfg.KafkaOrderTopic, cfg.KafkaBrokers...)

	for _, worker := range []func(context.Context){poller.Run, sweeper.Run, cleaner.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(workersCtx)
		}()
	}

	router := h.NewRouter(
		h.NewCheckoutHandler(checkoutService, carts, cfg.RequestTimeout),
		h.NewOrdersHandler(checkoutService, cfg.RequestTimeout),
		h.RouterConfig{
			RequestTimeout:     cfg.RequestTimeout,
			MaxRequestBodySize: cfg.MaxRequestBodySize,
			Metrics:            metrics.Handler(reg),
			Recorder:           checkoutMetrics,
		})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "checkout-pipeline"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down")
	case err = <-serveErr:
		log.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("server forced to shutdown", "error", shutdownErr)
	}

	stopWorkers()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("workers did not stop in time")
	}

	if closeErr := poller.Close(); closeErr != nil {
		log.Warn("failed to close kafka writer", "error", closeErr)
	}
	cleaner.Close()

	return err
}
