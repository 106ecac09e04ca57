package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olahol/melody"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/affora/partner-hub/internal/config"
	"github.com/affora/partner-hub/internal/database"
	"github.com/affora/partner-hub/internal/httpserver"
	"github.com/affora/partner-hub/internal/jobs"
	"github.com/affora/partner-hub/internal/metrics"
	"github.com/affora/partner-hub/internal/notify"
	"github.com/affora/partner-hub/internal/storage"
)

func main() {
	// Local overrides; missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	defer logger.Sync()

	logger.Info("starting partner-hub",
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

	// Try to connect to Redis
	redis, err := database.NewRedisDB(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis not available, visitor dedup falls back to memory", zap.Error(err))
		redis = nil
	} else {
		defer redis.Close()
	}

	// Optional click archive
	var archive storage.ArchiveSink
	if cfg.ClickHouse.Enabled {
		archive, err = storage.NewClickHouseArchive(ctx,
			cfg.ClickHouse.Addr, cfg.ClickHouse.Database,
			cfg.ClickHouse.User, cfg.ClickHouse.Password)
		if err != nil {
			logger.Warn("ClickHouse not available, click archiving disabled", zap.Error(err))
			archive = nil
		} else {
			defer archive.Close()
			logger.Info("connected to ClickHouse", zap.String("addr", cfg.ClickHouse.Addr))
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics("partner_hub")
	}

	ws := notify.NewMelodyBroadcaster(melody.New(), logger)
	defer ws.Close()

	server := httpserver.NewServer(&httpserver.Dependencies{
		DB:      db,
		Redis:   redis,
		Archive: archive,
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		WS:      ws,
	})

	// Background stats reconciliation
	if cfg.Jobs.ReconcileEnabled {
		c := cron.New()
		reconciler := jobs.NewReconciler(server.Links(), server.Events(), logger)
		if err := reconciler.Schedule(c, cfg.Jobs.ReconcileSpec); err != nil {
			logger.Error("failed to schedule reconciliation", zap.Error(err))
		} else {
			defer c.Stop()
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

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
