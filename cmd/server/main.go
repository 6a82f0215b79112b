package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-payments/config"
	"order-payments/internal/api"
	"order-payments/internal/broker"
	"order-payments/internal/clock"
	"order-payments/internal/gateway"
	"order-payments/internal/lock"
	"order-payments/internal/redisclient"
	"order-payments/internal/service"
	"order-payments/internal/store"
	"order-payments/internal/util"
	"order-payments/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting order payments service",
		zap.String("env", cfg.Server.Env),
		zap.Duration("gateway_retry_budget", cfg.Gateway.RetryBudget()),
		zap.Duration("lock_lease", cfg.Payment.LockLease),
	)

	tp, err := util.InitTracer("order-payments", cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Database migrations applied")
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	clk := clock.New()

	var locker lock.Locker
	switch cfg.Payment.LockBackend {
	case "memory":
		logger.Warn("Using in-process payment lock; run a single replica only")
		locker = lock.NewMemoryLocker(clk)
	default:
		locker = lock.NewRedisLocker(redisClient)
	}

	gw, err := newGateway(cfg.Gateway)
	if err != nil {
		logger.Fatal("Failed to initialize payment gateway", zap.Error(err))
	}

	var notifier service.Notifier = service.NewLogNotifier()
	var producer *broker.Producer
	var publisher *broker.EventPublisher
	if cfg.Kafka.Enabled {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		notifier = service.MultiNotifier{notifier, publisher}
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	processor := service.NewPaymentProcessor(db, gw, locker, notifier, service.ProcessorConfig{
		LockLease:         cfg.Payment.LockLease,
		ThrottleWindow:    cfg.Payment.ThrottleWindow,
		MaxFailedAttempts: cfg.Payment.MaxFailedAttempts,
	})
	orderService := service.NewOrderService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var requester api.PaymentRequester
	var paymentWorker *worker.PaymentWorker
	if cfg.Kafka.Enabled {
		requester = service.NewPaymentRequester(orderService, publisher, redisClient)

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		paymentWorker = worker.NewPaymentWorker(consumer, processor, db).
			WithRetry(200*time.Millisecond, 2*cfg.Payment.LockLease)
		go func() {
			if err := paymentWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Payment worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, processor, requester, cfg.Server.Env).
		WithDependency("database", db).
		WithDependency("redis", redisClient)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if paymentWorker != nil {
		if err := paymentWorker.Stop(); err != nil {
			logger.Warn("Error stopping payment worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

func newGateway(cfg config.GatewayConfig) (gateway.Client, error) {
	if cfg.UseFake {
		util.GetLogger().Warn("Using fake payment gateway")
		return gateway.NewFakeClient(true), nil
	}

	strategy, err := gateway.ParseStrategy(cfg.MockStrategy)
	if err != nil {
		return nil, err
	}
	return gateway.NewHTTPClient(gateway.Options{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		Retries:    cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Strategy:   strategy,
	})
}
