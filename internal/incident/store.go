// Package incident provides PostgreSQL-backed storage for denied chat
// messages. Each incident captures who sent the message, why it was denied
// and the karma the sender had afterwards, so operators can review the
// moderation history behind a ban decision.
package incident

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// validReasons matches the CHECK constraint on moderation_incidents.
var validReasons = map[string]bool{
	"Blacklisted Word": true,
	"Contains URL":     true,
	"Too low karma":    true,
	"Banned":           true,
}

// Incident is a single denied message.
type Incident struct {
	ID        uuid.UUID
	Identity  string
	Reason    string
	Term      string // offending token, empty for karma and ban denials
	Message   string
	Karma     int
	CreatedAt time.Time
}

// Store manages incidents in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new incident store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts an incident. A zero ID is replaced with a fresh UUID and
// written back to inc.
func (s *Store) Record(ctx context.Context, inc *Incident) error {
	if !validReasons[inc.Reason] {
		return fmt.Errorf("incident: invalid reason %q", inc.Reason)
	}
	if inc.ID == uuid.Nil {
		inc.ID = uuid.New()
	}

	const query = `
		INSERT INTO moderation_incidents (id, identity, reason, term, message, karma)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		inc.ID.String(),
		inc.Identity,
		inc.Reason,
		inc.Term,
		inc.Message,
		inc.Karma,
	)
	if err != nil {
		return fmt.Errorf("incident: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of incidents for an identity within the
// given time window.
func (s *Store) CountRecent(ctx context.Context, identity string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_incidents
		WHERE identity = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, identity, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incident: count recent: %w", err)
	}
	return count, nil
}
