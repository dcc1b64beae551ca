package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "session:"

	// RosterKey is the Redis hash of connected identities (id -> name).
	RosterKey = "roster:names"

	// SessionTTL is the time-to-live for session keys in Redis.
	SessionTTL = 1 * time.Hour
)

// Session represents a connection's state stored in Redis.
type Session struct {
	ID         string `redis:"id"`
	Identity   string `redis:"identity"`
	Name       string `redis:"name"`
	Server     string `redis:"server"`      // which gateway instance
	CreatedAt  int64  `redis:"created_at"`  // unix timestamp
	LastActive int64  `redis:"last_active"` // unix timestamp
}

// Store manages sessions and the roster in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this gateway instance
}

// NewStore creates a session store on an existing Redis client.
func NewStore(client *redis.Client, serverName string) *Store {
	return &Store{client: client, serverName: serverName}
}

// Register stores a new session with a 1h TTL and lists the identity in
// the roster.
func (s *Store) Register(ctx context.Context, sessionID string, id Identity) error {
	key := SessionPrefix + sessionID
	now := time.Now().Unix()

	session := map[string]interface{}{
		"id":          sessionID,
		"identity":    id.ID,
		"name":        id.Name,
		"server":      s.serverName,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, session)
	pipe.Expire(ctx, key, SessionTTL)
	pipe.HSet(ctx, RosterKey, id.ID, id.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: register: %w", err)
	}
	return nil
}

// Get retrieves a session from Redis.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := SessionPrefix + sessionID
	var session Session
	if err := s.client.HGetAll(ctx, key).Scan(&session); err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}
	if session.ID == "" {
		return nil, ErrNotFound
	}
	return &session, nil
}

// Touch refreshes the session's TTL and last-activity timestamp.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Unregister removes a session and its roster entry.
func (s *Store) Unregister(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID

	identity, err := s.client.HGet(ctx, key, "identity").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: unregister: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if identity != "" {
		pipe.HDel(ctx, RosterKey, identity)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: unregister: %w", err)
	}
	return nil
}

// Resolve matches partial against the roster.
func (s *Store) Resolve(ctx context.Context, partial string) (Identity, bool, error) {
	names, err := s.client.HGetAll(ctx, RosterKey).Result()
	if err != nil {
		return Identity{}, false, fmt.Errorf("session: resolve: %w", err)
	}

	roster := make([]Identity, 0, len(names))
	for id, name := range names {
		roster = append(roster, Identity{ID: id, Name: name})
	}
	id, ok := Resolve(roster, partial)
	return id, ok, nil
}
