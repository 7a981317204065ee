package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/prohmpiriya/ticket-inventory/internal/di"
	"github.com/prohmpiriya/ticket-inventory/internal/handler"
	"github.com/prohmpiriya/ticket-inventory/internal/metrics"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
	"github.com/prohmpiriya/ticket-inventory/internal/worker"
	"github.com/prohmpiriya/ticket-inventory/pkg/config"
	"github.com/prohmpiriya/ticket-inventory/pkg/logger"
)

const serviceName = "outbox-relay"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Outbox Relay...")

	if !cfg.Outbox.Enabled || !cfg.Kafka.Enabled || cfg.Inventory.StoreBackend != config.BackendPostgres {
		appLog.Fatal("Outbox relay needs OUTBOX_ENABLED, KAFKA_ENABLED and the postgres store backend")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infra, err := di.Connect(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("Failed to connect backends", zap.Error(err))
	}
	defer func() {
		if err := infra.Close(context.Background()); err != nil {
			appLog.Warn("Failed to close backends cleanly", zap.Error(err))
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)

	outboxWorker := worker.NewOutboxWorker(
		repository.NewPostgresOutboxRepository(infra.DB.Pool()),
		infra.Kafka,
		&worker.OutboxWorkerConfig{
			PollInterval:    cfg.Outbox.PollInterval,
			BatchSize:       cfg.Outbox.BatchSize,
			RetryInterval:   cfg.Outbox.RetryInterval,
			CleanupInterval: cfg.Outbox.CleanupInterval,
			Retention:       cfg.Outbox.RetentionPeriod,
		},
		m,
		appLog.Named("outbox"),
	)
	if err := outboxWorker.Start(ctx); err != nil {
		appLog.Fatal("Failed to start outbox worker", zap.Error(err))
	}

	// Health and metrics
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	health := handler.NewHealthHandler(serviceName, infra.HealthCheckers())
	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}
	go func() {
		appLog.Info("Outbox relay health server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("Health server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down outbox relay...")
	outboxWorker.Stop()
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	appLog.Info("Outbox relay stopped")
}
