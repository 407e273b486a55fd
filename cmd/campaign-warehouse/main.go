package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orchard9/campaign-warehouse/internal/config"
	"github.com/orchard9/campaign-warehouse/internal/database"
	"github.com/orchard9/campaign-warehouse/internal/httpserver"
	"github.com/orchard9/campaign-warehouse/internal/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	defer logger.Sync()

	logger.Info("starting campaign-warehouse",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
	)

	ctx := context.Background()

	// Try to connect to PostgreSQL
	db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Warn("PostgreSQL not available, using in-memory storage", zap.Error(err))
		db = nil
	} else {
		defer db.Close()
	}

	// Try to connect to ClickHouse
	ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
	if err != nil {
		logger.Warn("ClickHouse not available, hourly counters kept in memory", zap.Error(err))
		ch = nil
	} else {
		defer ch.Close()
	}

	// Try to connect to Redis
	rdb, err := database.NewRedisDB(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis not available, rollup caching disabled", zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close()
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics("campaign_warehouse")
	}

	deps := &httpserver.Dependencies{
		DB:         db,
		ClickHouse: ch,
		Redis:      rdb,
		Config:     cfg,
		Logger:     logger,
		Metrics:    m,
	}

	handler := httpserver.NewServer(deps)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func setupLogger(cfg *config.Config) *zap.Logger {
	var zapCfg zap.Config

	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Log.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}

	return logger
}
