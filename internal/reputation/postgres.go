package reputation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// PostgresStore keeps reputation records in the reputation table (see
// internal/database/migrations). Every mutation is a single UPSERT, so
// concurrent writers for the same identity serialize on the row.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a store backed by the given database handle. The
// handle is shared and is not closed by Close.
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger.Named("reputation")}
}

func (s *PostgresStore) IsBanned(ctx context.Context, id string) (bool, error) {
	const query = `SELECT banned FROM reputation WHERE identity = $1`

	var banned bool
	err := s.db.QueryRowContext(ctx, query, id).Scan(&banned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reputation: is banned: %w", err)
	}
	return banned, nil
}

// SetBanned locks the row for the duration of the compare-and-set so two
// concurrent bans report exactly one change.
func (s *PostgresStore) SetBanned(ctx context.Context, id string, banned bool) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("reputation: set banned: begin: %w", err)
	}
	defer tx.Rollback()

	const ensure = `
		INSERT INTO reputation (identity) VALUES ($1)
		ON CONFLICT (identity) DO NOTHING`
	if _, err := tx.ExecContext(ctx, ensure, id); err != nil {
		return false, fmt.Errorf("reputation: set banned: ensure row: %w", err)
	}

	const lock = `SELECT banned FROM reputation WHERE identity = $1 FOR UPDATE`
	var prev bool
	if err := tx.QueryRowContext(ctx, lock, id).Scan(&prev); err != nil {
		return false, fmt.Errorf("reputation: set banned: lock: %w", err)
	}
	if prev == banned {
		return false, nil
	}

	const update = `UPDATE reputation SET banned = $2, updated_at = NOW() WHERE identity = $1`
	if _, err := tx.ExecContext(ctx, update, id, banned); err != nil {
		return false, fmt.Errorf("reputation: set banned: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("reputation: set banned: commit: %w", err)
	}

	s.logger.Info("ban flag changed", zap.String("identity", id), zap.Bool("banned", banned))
	return true, nil
}

func (s *PostgresStore) RecordViolation(ctx context.Context, id string) (int, error) {
	const query = `
		INSERT INTO reputation (identity, violations) VALUES ($1, 1)
		ON CONFLICT (identity) DO UPDATE
		SET violations = COALESCE(reputation.violations, 0) + 1, updated_at = NOW()
		RETURNING violations`

	var count int
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("reputation: record violation: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ViolationCount(ctx context.Context, id string) (int, bool, error) {
	const query = `SELECT violations FROM reputation WHERE identity = $1`

	var count sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reputation: violation count: %w", err)
	}
	if !count.Valid || count.Int64 <= 0 {
		return 0, false, nil
	}
	return int(count.Int64), true, nil
}

func (s *PostgresStore) InitKarma(ctx context.Context, id string) error {
	const query = `
		INSERT INTO reputation (identity, karma) VALUES ($1, 0)
		ON CONFLICT (identity) DO UPDATE
		SET karma = 0, updated_at = NOW()
		WHERE reputation.karma IS NULL`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("reputation: init karma: %w", err)
	}
	return nil
}

func (s *PostgresStore) AdjustKarma(ctx context.Context, id string, dir Direction, amount int) (int, error) {
	delta, err := SignedDelta(dir, amount)
	if err != nil {
		return 0, err
	}

	const query = `
		INSERT INTO reputation (identity, karma) VALUES ($1, $2)
		ON CONFLICT (identity) DO UPDATE
		SET karma = COALESCE(reputation.karma, 0) + EXCLUDED.karma, updated_at = NOW()
		RETURNING karma`

	var karma int
	if err := s.db.QueryRowContext(ctx, query, id, delta).Scan(&karma); err != nil {
		return 0, fmt.Errorf("reputation: adjust karma: %w", err)
	}
	return karma, nil
}

func (s *PostgresStore) ResetKarma(ctx context.Context, id string) error {
	const query = `
		INSERT INTO reputation (identity, karma) VALUES ($1, 0)
		ON CONFLICT (identity) DO UPDATE
		SET karma = 0, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("reputation: reset karma: %w", err)
	}
	return nil
}

func (s *PostgresStore) Karma(ctx context.Context, id string) (int, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return rec.Karma, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	const query = `SELECT violations, banned, karma FROM reputation WHERE identity = $1`

	var (
		violations sql.NullInt64
		banned     bool
		karma      sql.NullInt64
	)
	rec := Record{Identity: id}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&violations, &banned, &karma)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("reputation: get: %w", err)
	}

	if violations.Valid {
		rec.Violations = int(violations.Int64)
	}
	rec.Banned = banned
	if karma.Valid {
		rec.Karma = int(karma.Int64)
		rec.KarmaInitialized = true
	}
	return rec, nil
}

// Close is a no-op; the owner of the *sql.DB closes it.
func (s *PostgresStore) Close() error {
	return nil
}
