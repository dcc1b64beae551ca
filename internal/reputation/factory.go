package reputation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/whisper/chatmod/internal/config"
)

// Backends carries the shared connections a store may be built on. Only the
// connection the selected backend needs has to be set.
type Backends struct {
	Redis *redis.Client
	DB    *sql.DB
}

// Open builds the store selected by cfg.StoreBackend. An unknown backend is
// an error; an empty one means the file backend.
func Open(_ context.Context, cfg config.Process, b Backends, logger *zap.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("reputation store is in-memory; records are lost on restart")
		return NewMemoryStore(logger), nil
	case config.BackendFile, "":
		return NewFileStore(cfg.StorePath, logger)
	case config.BackendRedis:
		if b.Redis == nil {
			return nil, fmt.Errorf("reputation: redis backend selected without a redis client")
		}
		return NewRedisStore(b.Redis, logger), nil
	case config.BackendPostgres:
		if b.DB == nil {
			return nil, fmt.Errorf("reputation: postgres backend selected without DATABASE_URL")
		}
		return NewPostgresStore(b.DB, logger), nil
	default:
		return nil, fmt.Errorf("reputation: unknown store backend %q", cfg.StoreBackend)
	}
}
