package reputation

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore keeps records in a map guarded by a single mutex. With a
// persist hook it becomes the file-backed store; without one it is meant for
// tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	persist func(map[string]*Record) error // called under mu after each change
	logger  *zap.Logger
}

// NewMemoryStore creates an empty, non-durable store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		logger:  logger.Named("reputation"),
	}
}

// mutate runs fn on a copy of the identity's record under the lock, creating
// it if needed. fn reports whether it changed anything. A changed record
// replaces the stored one only after persist accepted it, so a failed write
// leaves memory as it was.
func (s *MemoryStore) mutate(id string, fn func(r *Record) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Record{Identity: id}
	if cur, ok := s.records[id]; ok {
		r = *cur
	}
	if !fn(&r) {
		return nil
	}

	if s.persist != nil {
		next := make(map[string]*Record, len(s.records)+1)
		for k, v := range s.records {
			next[k] = v
		}
		next[id] = &r
		if err := s.persist(next); err != nil {
			return err
		}
	}
	s.records[id] = &r
	return nil
}

func (s *MemoryStore) read(id string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[id]; ok {
		return *r
	}
	return Record{Identity: id}
}

func (s *MemoryStore) IsBanned(_ context.Context, id string) (bool, error) {
	return s.read(id).Banned, nil
}

func (s *MemoryStore) SetBanned(_ context.Context, id string, banned bool) (bool, error) {
	changed := false
	err := s.mutate(id, func(r *Record) bool {
		if r.Banned == banned {
			return false
		}
		r.Banned = banned
		changed = true
		return true
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.logger.Info("ban flag changed", zap.String("identity", id), zap.Bool("banned", banned))
	}
	return changed, nil
}

func (s *MemoryStore) RecordViolation(_ context.Context, id string) (int, error) {
	var count int
	err := s.mutate(id, func(r *Record) bool {
		r.Violations++
		count = r.Violations
		return true
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *MemoryStore) ViolationCount(_ context.Context, id string) (int, bool, error) {
	r := s.read(id)
	return r.Violations, r.HasViolations(), nil
}

func (s *MemoryStore) InitKarma(_ context.Context, id string) error {
	return s.mutate(id, func(r *Record) bool {
		if r.KarmaInitialized {
			return false
		}
		r.Karma = 0
		r.KarmaInitialized = true
		return true
	})
}

func (s *MemoryStore) AdjustKarma(_ context.Context, id string, dir Direction, amount int) (int, error) {
	delta, err := SignedDelta(dir, amount)
	if err != nil {
		return 0, err
	}
	var karma int
	err = s.mutate(id, func(r *Record) bool {
		r.Karma += delta
		r.KarmaInitialized = true
		karma = r.Karma
		return true
	})
	if err != nil {
		return 0, err
	}
	return karma, nil
}

func (s *MemoryStore) ResetKarma(_ context.Context, id string) error {
	return s.mutate(id, func(r *Record) bool {
		r.Karma = 0
		r.KarmaInitialized = true
		return true
	})
}

func (s *MemoryStore) Karma(_ context.Context, id string) (int, error) {
	return s.read(id).Karma, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	return s.read(id), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
