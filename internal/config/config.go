// Package config loads the two configuration layers used by the chat
// moderation services: process settings from the environment (optionally
// seeded from a .env file) and the moderation lexicon from a YAML file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Process holds settings for the moderator and gateway binaries.
type Process struct {
	ListenAddr      string        // gateway WebSocket listener
	MaxConnections  int           // gateway connection cap
	MetricsAddr     string        // Prometheus endpoint, empty disables it
	RedisAddr       string        // redis host:port
	NATSURL         string        // nats://host:port
	DatabaseURL     string        // postgres DSN, also enables the incident log
	StoreBackend    string        // memory | file | redis | postgres
	StorePath       string        // data file for the file backend
	ModerationFile  string        // YAML lexicon path
	LogLevel        string        // zap level
	LogFormat       string        // json | console
	AdminIdentities []string      // identities granted the admin permissions
	AuthSecret      string        // HS256 secret for identity tokens, empty disables verification
	RequestTimeout  time.Duration // NATS request/reply timeout
	ChatRateLimit   int           // chat lines per identity per window, 0 (default) disables
	ChatRateWindow  time.Duration
	ChatHistory     int    // recent lines replayed to a new connection
	ServerName      string // gateway instance id stored in sessions, defaults to the hostname
}

// LoadProcess reads the process configuration from the environment. A .env
// file in the working directory is loaded first when present; variables that
// are already set win over the file.
func LoadProcess() Process {
	_ = godotenv.Load()

	return Process{
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		MaxConnections:  getEnvAsInt("MAX_CONNECTIONS", 10000),
		MetricsAddr:     getEnv("METRICS_ADDR", ":9090"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		NATSURL:         getEnv("NATS_URL", "nats://localhost:4222"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", BackendFile)),
		StorePath:       getEnv("STORE_PATH", "data/reputation.json"),
		ModerationFile:  getEnv("MODERATION_CONFIG", "config/moderation.yaml"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		AdminIdentities: getEnvAsList("ADMIN_IDENTITIES"),
		AuthSecret:      getEnv("AUTH_SECRET", ""),
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 2*time.Second),
		ChatRateLimit:   getEnvAsInt("CHAT_RATE_LIMIT", 0),
		ChatRateWindow:  getEnvAsDuration("CHAT_RATE_WINDOW", 10*time.Second),
		ChatHistory:     getEnvAsInt("CHAT_HISTORY", 5),
		ServerName:      getEnv("SERVER_NAME", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvAsList splits a comma-separated variable, dropping blank entries.
func getEnvAsList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
