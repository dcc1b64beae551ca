package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/whisper/chatmod/internal/auth"
	"github.com/whisper/chatmod/internal/commands"
	"github.com/whisper/chatmod/internal/config"
	"github.com/whisper/chatmod/internal/gateway"
	"github.com/whisper/chatmod/internal/logging"
	"github.com/whisper/chatmod/internal/messaging"
	"github.com/whisper/chatmod/internal/metrics"
	"github.com/whisper/chatmod/internal/ratelimit"
	"github.com/whisper/chatmod/internal/session"
	"github.com/whisper/chatmod/internal/ws"
)

func main() {
	cfg := config.LoadProcess()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	serverConfig := ws.DefaultServerConfig()
	serverConfig.ListenAddr = cfg.ListenAddr
	serverConfig.MaxConnections = cfg.MaxConnections

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "chatmod-gateway"
	natsClient, err := messaging.NewNATSClient(natsConfig, logger)
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}

	// --- Redis directory, in-process when Redis is unreachable ---
	serverName := cfg.ServerName
	if serverName == "" {
		serverName, _ = os.Hostname()
	}
	if serverName == "" {
		serverName = "gateway-1"
	}

	chatRule := ratelimit.RuleChat
	chatRule.Limit = cfg.ChatRateLimit
	chatRule.Window = cfg.ChatRateWindow

	var (
		dir     session.Directory
		limiter ratelimit.Limiter
	)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-process directory",
			zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = rdb.Close()
		rdb = nil
		dir = session.NewMemoryDirectory()
		if chatRule.Limit > 0 {
			limiter = ratelimit.NewMemoryLimiter(chatRule)
		}
	} else {
		dir = session.NewStore(rdb, serverName)
		if chatRule.Limit > 0 {
			limiter = ratelimit.NewRedisLimiter(rdb, chatRule, logger)
		}
	}
	cancel()

	// Without a secret nobody can prove an identity, so the administrative
	// commands stay refused.
	var tokens gateway.TokenVerifier
	if cfg.AuthSecret != "" {
		tokens = auth.NewVerifier(cfg.AuthSecret)
	} else {
		logger.Warn("AUTH_SECRET not set, administrative commands are disabled")
	}

	logger.Info("chat gateway starting",
		zap.String("listen_addr", serverConfig.ListenAddr),
		zap.Int("max_connections", serverConfig.MaxConnections),
		zap.String("nats_url", natsConfig.URL),
		zap.String("server_name", serverName),
		zap.Int("admins", len(cfg.AdminIdentities)),
		zap.Bool("identity_tokens", cfg.AuthSecret != ""),
		zap.Int("chat_rate_limit", chatRule.Limit),
		zap.Duration("chat_rate_window", chatRule.Window),
	)

	dispatcher := ws.NewMessageDispatcher(logger)
	server := ws.NewServer(serverConfig, dispatcher.Dispatch, logger)
	server.Handle("/metrics", metrics.Handler())

	gw := gateway.New(server.Connections(), gateway.Deps{
		Directory: dir,
		Moderator: gateway.NewNATSModerator(natsClient),
		Admin:     commands.NewNATSAdmin(natsClient),
		Auth:      commands.NewStaticAuthorizer(cfg.AdminIdentities),
		Bus:       natsClient,
		Limiter:   limiter,
		History:   cfg.ChatHistory,
		Tokens:    tokens,
	}, cfg.RequestTimeout, logger)
	gw.Register(dispatcher)
	server.SetOnDisconnect(gw.OnDisconnect)

	if err := natsClient.SubscribeChat(gw.Deliver); err != nil {
		logger.Fatal("failed to subscribe to chat", zap.Error(err))
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
		natsClient.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
	}()

	if err := server.Start(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
