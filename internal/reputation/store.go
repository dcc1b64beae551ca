// Package reputation owns the per-identity moderation record: violation
// count, chat ban flag and karma score. Records are created lazily and never
// deleted. Every mutation is written through to the backing store before the
// call returns, and every read-modify-write is atomic per identity.
package reputation

import (
	"context"
	"errors"
	"fmt"
)

// Direction is the sign of a karma adjustment.
type Direction string

const (
	Increase Direction = "increase"
	Decrease Direction = "decrease"
)

var (
	// ErrInvalidDirection is returned by AdjustKarma for any direction other
	// than Increase or Decrease. The store is left unchanged.
	ErrInvalidDirection = errors.New("reputation: invalid karma direction")

	// ErrInvalidAmount is returned by AdjustKarma for a non-positive amount.
	ErrInvalidAmount = errors.New("reputation: karma amount must be positive")
)

// Record is a snapshot of one identity's reputation.
type Record struct {
	Identity string `json:"-"`
	// Violations is 0 until the first violation is recorded.
	Violations int  `json:"violations,omitempty"`
	Banned     bool `json:"banned,omitempty"`
	Karma      int  `json:"karma"`
	// KarmaInitialized is false until InitKarma or any karma write.
	KarmaInitialized bool `json:"karma_initialized"`
}

// HasViolations reports whether a violation count exists for the identity.
func (r Record) HasViolations() bool {
	return r.Violations > 0
}

// Store is the reputation persistence contract shared by all backends.
type Store interface {
	// IsBanned reports the ban flag; false when no record exists.
	IsBanned(ctx context.Context, id string) (bool, error)
	// SetBanned sets the ban flag and reports whether it changed.
	SetBanned(ctx context.Context, id string, banned bool) (bool, error)
	// RecordViolation initialises the count to 1 or increments it, returning
	// the new count.
	RecordViolation(ctx context.Context, id string) (int, error)
	// ViolationCount returns the count and whether one has been recorded.
	ViolationCount(ctx context.Context, id string) (int, bool, error)
	// InitKarma sets karma to 0 unless a value already exists.
	InitKarma(ctx context.Context, id string) error
	// AdjustKarma moves karma by amount in the given direction and returns
	// the new value.
	AdjustKarma(ctx context.Context, id string, dir Direction, amount int) (int, error)
	// ResetKarma sets karma to 0 unconditionally.
	ResetKarma(ctx context.Context, id string) error
	// Karma returns the current karma, 0 when uninitialised.
	Karma(ctx context.Context, id string) (int, error)
	// Get returns a snapshot of the whole record.
	Get(ctx context.Context, id string) (Record, error)
	Close() error
}

// SignedDelta validates a direction/amount pair and returns the signed delta.
func SignedDelta(dir Direction, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	switch dir {
	case Increase:
		return amount, nil
	case Decrease:
		return -amount, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, string(dir))
	}
}
