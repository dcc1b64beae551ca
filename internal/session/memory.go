package session

import (
	"context"
	"sync"
)

// MemoryDirectory is a single-process Directory, used when the gateway runs
// without Redis.
type MemoryDirectory struct {
	mu       sync.RWMutex
	sessions map[string]Identity // session id -> identity
	roster   map[string]string   // identity id -> name
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		sessions: make(map[string]Identity),
		roster:   make(map[string]string),
	}
}

func (d *MemoryDirectory) Register(_ context.Context, sessionID string, id Identity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[sessionID] = id
	d.roster[id.ID] = id.Name
	return nil
}

func (d *MemoryDirectory) Unregister(_ context.Context, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.sessions[sessionID]; ok {
		delete(d.sessions, sessionID)
		delete(d.roster, id.ID)
	}
	return nil
}

// Touch is a no-op; in-process sessions do not expire.
func (d *MemoryDirectory) Touch(context.Context, string) error {
	return nil
}

func (d *MemoryDirectory) Resolve(_ context.Context, partial string) (Identity, bool, error) {
	d.mu.RLock()
	roster := make([]Identity, 0, len(d.roster))
	for id, name := range d.roster {
		roster = append(roster, Identity{ID: id, Name: name})
	}
	d.mu.RUnlock()

	id, ok := Resolve(roster, partial)
	return id, ok, nil
}
