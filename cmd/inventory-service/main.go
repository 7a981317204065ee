package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/prohmpiriya/ticket-inventory/internal/di"
	"github.com/prohmpiriya/ticket-inventory/internal/handler"
	"github.com/prohmpiriya/ticket-inventory/internal/metrics"
	"github.com/prohmpiriya/ticket-inventory/internal/worker"
	"github.com/prohmpiriya/ticket-inventory/pkg/config"
	"github.com/prohmpiriya/ticket-inventory/pkg/logger"
	"github.com/prohmpiriya/ticket-inventory/pkg/middleware"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: di.ServiceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Ticket Inventory Service...",
		zap.String("ledger_backend", cfg.Inventory.LedgerBackend),
		zap.String("store_backend", cfg.Inventory.StoreBackend),
	)

	ctx := context.Background()

	// Initialize tracing
	if err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Tracing disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	// Connect the configured backends
	infra, err := di.Connect(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("Failed to connect backends", zap.Error(err))
	}
	defer func() {
		if err := infra.Close(context.Background()); err != nil {
			appLog.Warn("Failed to close backends cleanly", zap.Error(err))
		}
	}()

	stores, err := di.NewStores(ctx, cfg, infra)
	if err != nil {
		appLog.Fatal("Failed to initialize stores", zap.Error(err))
	}

	publisher, err := infra.EventPublisher(cfg)
	if err != nil {
		appLog.Fatal("Failed to initialize event publisher", zap.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		Stores:                stores,
		EventPublisher:        publisher,
		Metrics:               m,
		Logger:                appLog,
		Backends:              infra.HealthCheckers(),
		ReleaseOnIssueFailure: cfg.Inventory.ReleaseOnIssueFailure,
	})

	// Snapshot the Redis ledger back into the event store
	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	if stores.Dirty != nil {
		snapshotWorker := worker.NewLedgerSnapshotWorker(&worker.LedgerSnapshotConfig{
			Interval: cfg.Inventory.SnapshotInterval,
		}, stores.Dirty, stores.Events, m, appLog.Named("snapshot"))

		workers.Add(1)
		go func() {
			defer workers.Done()
			snapshotWorker.Start(workerCtx)
		}()
	}

	// Setup Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(di.ServiceName))
	router.Use(middleware.RequestLogger(appLog, "/health", "/ready", "/metrics"))
	router.Use(middleware.Timeout(cfg.Inventory.OperationTimeout))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes := &handler.Routes{
		Health:    container.HealthHandler,
		Inventory: container.InventoryHandler,
		Admin:     container.AdminHandler,
	}
	if cfg.Idempotency.Enabled && infra.Redis != nil {
		idempotencyCfg := middleware.DefaultIdempotencyConfig(middleware.NewRedisIdempotencyStore(infra.Redis.Raw()))
		if cfg.Idempotency.TTL > 0 {
			idempotencyCfg.TTL = cfg.Idempotency.TTL
		}
		routes.Idempotency = middleware.IdempotencyMiddleware(idempotencyCfg)
	}
	handler.RegisterRoutes(router, routes)

	// Create HTTP server
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		appLog.Info("Ticket Inventory Service listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop workers after the last request so the final snapshot sees every reservation
	stopWorkers()
	workers.Wait()

	appLog.Info("Server exited gracefully")
}
