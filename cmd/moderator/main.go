package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/whisper/chatmod/internal/config"
	"github.com/whisper/chatmod/internal/database"
	"github.com/whisper/chatmod/internal/engine"
	"github.com/whisper/chatmod/internal/incident"
	"github.com/whisper/chatmod/internal/logging"
	"github.com/whisper/chatmod/internal/messaging"
	"github.com/whisper/chatmod/internal/metrics"
	"github.com/whisper/chatmod/internal/moderator"
	"github.com/whisper/chatmod/internal/reputation"
)

func main() {
	cfg := config.LoadProcess()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	modCfg := config.LoadModeration(cfg.ModerationFile, logger)

	ctx := context.Background()

	// Redis setup.
	var rdb *redis.Client
	if cfg.StoreBackend == config.BackendRedis {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
	}

	// Postgres setup: reputation backend and/or incident log.
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		defer db.Close()
	}

	store, err := reputation.Open(ctx, cfg, reputation.Backends{Redis: rdb, DB: db}, logger)
	if err != nil {
		logger.Fatal("failed to open reputation store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer store.Close()

	var opts []engine.Option
	if db != nil {
		opts = append(opts, engine.WithIncidents(incident.NewStore(db)))
	}
	eng := engine.New(modCfg, store, logger, opts...)

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "chatmod-moderator"
	natsClient, err := messaging.NewNATSClient(natsConfig, logger)
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}

	svc := moderator.NewService(eng, modCfg, cfg.RequestTimeout, logger)
	if err := svc.Register(natsClient); err != nil {
		logger.Fatal("failed to subscribe to moderation subjects", zap.Error(err))
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	logger.Info("moderation service running",
		zap.String("store_backend", cfg.StoreBackend),
		zap.Bool("incident_log", db != nil),
		zap.String("nats_url", natsConfig.URL),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	natsClient.Close()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		cancel()
	}
}
