// Package ratelimit throttles chat per identity with a fixed window counter:
// INCR + EXPIRE in Redis when gateways share state, or an in-process map
// for a single gateway.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Rule defines a rate limiting policy: the key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // key prefix, e.g. "rl:chat:"
	Limit  int           // max count in the window, 0 disables the rule
	Window time.Duration // time window
}

// RuleChat allows 5 chat lines per 10 seconds per identity.
var RuleChat = Rule{Key: "rl:chat:", Limit: 5, Window: 10 * time.Second}

// Limiter decides whether identifier may act under its rule.
type Limiter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
}

// RedisLimiter performs rate limiting checks against Redis.
type RedisLimiter struct {
	client *redis.Client
	rule   Rule
	logger *zap.Logger
}

// NewRedisLimiter creates a limiter backed by the given Redis client.
func NewRedisLimiter(client *redis.Client, rule Rule, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, rule: rule, logger: logger.Named("ratelimit")}
}

// Allow increments the identifier's counter and sets the expiry on first
// access. On Redis errors it fails open (returns true with the error) so an
// outage does not silence chat.
func (l *RedisLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	if l.rule.Limit <= 0 {
		return true, nil
	}
	key := l.rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("INCR failed, failing open", zap.String("key", key), zap.Error(err))
		return true, err
	}

	// The first increment opens the window.
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.rule.Window).Err(); err != nil {
			l.logger.Warn("EXPIRE failed, failing open", zap.String("key", key), zap.Error(err))
			// Without a TTL the key would throttle the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= l.rule.Limit, nil
}

type window struct {
	count int
	ends  time.Time
}

// MemoryLimiter is the single-process equivalent of RedisLimiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	rule    Rule
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(rule Rule) *MemoryLimiter {
	return &MemoryLimiter{rule: rule, windows: make(map[string]*window), now: time.Now}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, identifier string) (bool, error) {
	if l.rule.Limit <= 0 {
		return true, nil
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identifier]
	if !ok || !now.Before(w.ends) {
		w = &window{ends: now.Add(l.rule.Window)}
		l.windows[identifier] = w
		l.sweep(now)
	}
	w.count++
	return w.count <= l.rule.Limit, nil
}

// sweep drops expired windows once the map grows; callers hold mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for id, w := range l.windows {
		if !now.Before(w.ends) {
			delete(l.windows, id)
		}
	}
}
