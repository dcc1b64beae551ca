package reputation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Records live in one Redis hash per identity:
//
//	Key:    reputation:<identity>
//	Fields: violations, banned ("1"/"0"), karma
//
// Counters use HINCRBY so concurrent moderators never lose an update.
const (
	// KeyPrefix is the Redis key prefix for reputation hashes.
	KeyPrefix = "reputation:"

	fieldViolations = "violations"
	fieldBanned     = "banned"
	fieldKarma      = "karma"
)

// setBannedLua sets the ban flag and returns 1 if it changed, 0 otherwise.
const setBannedLua = `
local prev = redis.call('HGET', KEYS[1], 'banned')
if not prev then prev = '0' end
if prev == ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'banned', ARGV[1])
return 1
`

// RedisStore keeps reputation records in Redis.
type RedisStore struct {
	client          *redis.Client
	setBannedScript *redis.Script
	logger          *zap.Logger
}

// NewRedisStore creates a store using the provided Redis client. The client
// is shared and is not closed by Close.
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client:          client,
		setBannedScript: redis.NewScript(setBannedLua),
		logger:          logger.Named("reputation"),
	}
}

func key(id string) string {
	return KeyPrefix + id
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s *RedisStore) IsBanned(ctx context.Context, id string) (bool, error) {
	val, err := s.client.HGet(ctx, key(id), fieldBanned).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reputation: is banned: %w", err)
	}
	return val == "1", nil
}

func (s *RedisStore) SetBanned(ctx context.Context, id string, banned bool) (bool, error) {
	res, err := s.setBannedScript.Run(ctx, s.client, []string{key(id)}, boolField(banned)).Int()
	if err != nil {
		return false, fmt.Errorf("reputation: set banned: %w", err)
	}
	changed := res == 1
	if changed {
		s.logger.Info("ban flag changed", zap.String("identity", id), zap.Bool("banned", banned))
	}
	return changed, nil
}

func (s *RedisStore) RecordViolation(ctx context.Context, id string) (int, error) {
	n, err := s.client.HIncrBy(ctx, key(id), fieldViolations, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("reputation: record violation: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) ViolationCount(ctx context.Context, id string) (int, bool, error) {
	n, err := s.client.HGet(ctx, key(id), fieldViolations).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reputation: violation count: %w", err)
	}
	return n, n > 0, nil
}

func (s *RedisStore) InitKarma(ctx context.Context, id string) error {
	if err := s.client.HSetNX(ctx, key(id), fieldKarma, 0).Err(); err != nil {
		return fmt.Errorf("reputation: init karma: %w", err)
	}
	return nil
}

func (s *RedisStore) AdjustKarma(ctx context.Context, id string, dir Direction, amount int) (int, error) {
	delta, err := SignedDelta(dir, amount)
	if err != nil {
		return 0, err
	}
	n, err := s.client.HIncrBy(ctx, key(id), fieldKarma, int64(delta)).Result()
	if err != nil {
		return 0, fmt.Errorf("reputation: adjust karma: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) ResetKarma(ctx context.Context, id string) error {
	if err := s.client.HSet(ctx, key(id), fieldKarma, 0).Err(); err != nil {
		return fmt.Errorf("reputation: reset karma: %w", err)
	}
	return nil
}

func (s *RedisStore) Karma(ctx context.Context, id string) (int, error) {
	n, err := s.client.HGet(ctx, key(id), fieldKarma).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reputation: karma: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	fields, err := s.client.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("reputation: get: %w", err)
	}

	rec := Record{Identity: id, Banned: fields[fieldBanned] == "1"}
	if v, ok := fields[fieldViolations]; ok {
		if rec.Violations, err = strconv.Atoi(v); err != nil {
			return Record{}, fmt.Errorf("reputation: get %s violations: %w", id, err)
		}
	}
	if v, ok := fields[fieldKarma]; ok {
		if rec.Karma, err = strconv.Atoi(v); err != nil {
			return Record{}, fmt.Errorf("reputation: get %s karma: %w", id, err)
		}
		rec.KarmaInitialized = true
	}
	return rec, nil
}

func (s *RedisStore) Close() error {
	return nil
}
