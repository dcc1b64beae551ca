package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/chatmod/internal/metrics"
	"github.com/whisper/chatmod/internal/reputation"
)

var (
	// ErrAlreadyBanned is returned by Ban for an identity that is banned.
	ErrAlreadyBanned = errors.New("engine: already banned")

	// ErrNotBanned is returned by Unban for an identity that is not banned.
	ErrNotBanned = errors.New("engine: not banned")
)

// Karma moved by the ban commands.
const (
	BanPenalty   = 5
	UnbanRestore = 2
)

// IncidentWindow is how far back Stats counts logged incidents.
const IncidentWindow = 24 * time.Hour

// IncidentCounter is implemented by incident logs that can be queried.
type IncidentCounter interface {
	CountRecent(ctx context.Context, identity string, window time.Duration) (int, error)
}

// Stats is the answer to a stats query.
type Stats struct {
	Violations    int
	HasViolations bool
	Banned        bool
	Karma         int
	// RecentIncidents counts logged denials within IncidentWindow; it is
	// only meaningful when HasIncidentLog is set.
	RecentIncidents int
	HasIncidentLog  bool
}

// Ban sets the ban flag and takes BanPenalty karma. Banning a banned
// identity returns ErrAlreadyBanned and changes nothing.
func (e *Engine) Ban(ctx context.Context, identity string) error {
	changed, err := e.store.SetBanned(ctx, identity, true)
	if err != nil {
		return fmt.Errorf("engine: ban %s: %w", identity, err)
	}
	if !changed {
		metrics.AdminActions.WithLabelValues("ban", "rejected").Inc()
		return ErrAlreadyBanned
	}
	if _, err := e.adjust(ctx, identity, reputation.Decrease, BanPenalty); err != nil {
		return err
	}

	metrics.AdminActions.WithLabelValues("ban", "ok").Inc()
	e.logger.Info("identity banned", zap.String("identity", identity))
	return nil
}

// Unban clears the ban flag and restores UnbanRestore karma. Unbanning an
// identity that is not banned returns ErrNotBanned and changes nothing.
func (e *Engine) Unban(ctx context.Context, identity string) error {
	changed, err := e.store.SetBanned(ctx, identity, false)
	if err != nil {
		return fmt.Errorf("engine: unban %s: %w", identity, err)
	}
	if !changed {
		metrics.AdminActions.WithLabelValues("unban", "rejected").Inc()
		return ErrNotBanned
	}
	if _, err := e.adjust(ctx, identity, reputation.Increase, UnbanRestore); err != nil {
		return err
	}

	metrics.AdminActions.WithLabelValues("unban", "ok").Inc()
	e.logger.Info("identity unbanned", zap.String("identity", identity))
	return nil
}

// ResetKarma sets karma to 0 unconditionally.
func (e *Engine) ResetKarma(ctx context.Context, identity string) error {
	if err := e.store.ResetKarma(ctx, identity); err != nil {
		return fmt.Errorf("engine: reset karma %s: %w", identity, err)
	}
	metrics.KarmaAdjustments.WithLabelValues("reset").Inc()
	metrics.AdminActions.WithLabelValues("karma-reset", "ok").Inc()
	e.logger.Info("karma reset", zap.String("identity", identity))
	return nil
}

// Stats reads the identity's record without changing it.
func (e *Engine) Stats(ctx context.Context, identity string) (Stats, error) {
	rec, err := e.store.Get(ctx, identity)
	if err != nil {
		return Stats{}, fmt.Errorf("engine: stats %s: %w", identity, err)
	}
	metrics.AdminActions.WithLabelValues("stats", "ok").Inc()
	st := Stats{
		Violations:    rec.Violations,
		HasViolations: rec.HasViolations(),
		Banned:        rec.Banned,
		Karma:         rec.Karma,
	}

	if counter, ok := e.incidents.(IncidentCounter); ok {
		n, err := counter.CountRecent(ctx, identity, IncidentWindow)
		if err != nil {
			e.logger.Warn("incident count failed", zap.String("identity", identity), zap.Error(err))
		} else {
			st.RecentIncidents, st.HasIncidentLog = n, true
		}
	}
	return st, nil
}
