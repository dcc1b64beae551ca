// Package session tracks connected chat identities. Each gateway connection
// gets a session record, and every connected identity is listed in a roster
// so administrative commands can find a player by partial name.
package session

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get for an unknown or expired session.
var ErrNotFound = errors.New("session: not found")

// Identity is a connected player: a stable id plus a display name.
type Identity struct {
	ID   string
	Name string
}

// Directory registers connected identities and resolves command targets.
type Directory interface {
	Register(ctx context.Context, sessionID string, id Identity) error
	Unregister(ctx context.Context, sessionID string) error
	// Touch marks the session active so it outlives its idle TTL.
	Touch(ctx context.Context, sessionID string) error
	// Resolve finds the identity a command argument refers to. found is
	// false when nothing matches or the match is ambiguous.
	Resolve(ctx context.Context, partial string) (id Identity, found bool, err error)
}

// Resolve picks the identity partial refers to, trying in order: exact id,
// case-insensitive exact name, unique name prefix, unique name substring.
// The first rule with exactly one match wins; a rule with several matches
// ends the search with no result.
func Resolve(roster []Identity, partial string) (Identity, bool) {
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return Identity{}, false
	}

	for _, id := range roster {
		if id.ID == partial {
			return id, true
		}
	}

	needle := strings.ToLower(partial)
	rules := []func(name string) bool{
		func(name string) bool { return name == needle },
		func(name string) bool { return strings.HasPrefix(name, needle) },
		func(name string) bool { return strings.Contains(name, needle) },
	}
	for _, match := range rules {
		var (
			hit   Identity
			count int
		)
		for _, id := range roster {
			if match(strings.ToLower(id.Name)) {
				hit = id
				count++
			}
		}
		switch {
		case count == 1:
			return hit, true
		case count > 1:
			return Identity{}, false
		}
	}
	return Identity{}, false
}
