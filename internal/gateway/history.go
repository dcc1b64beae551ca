package gateway

import "sync"

// History keeps the last few delivered chat messages, already encoded, so
// a new connection can be shown recent context. It is goroutine-safe and
// uses a ring buffer internally.
type History struct {
	mu    sync.Mutex
	items [][]byte
	pos   int
	count int
}

// NewHistory creates a buffer holding size messages; size 0 keeps nothing.
func NewHistory(size int) *History {
	return &History{items: make([][]byte, max(size, 0))}
}

// Add appends a message, overwriting the oldest when full.
func (h *History) Add(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := len(h.items)
	if size == 0 {
		return
	}
	h.items[h.pos] = msg
	h.pos = (h.pos + 1) % size
	if h.count < size {
		h.count++
	}
}

// Snapshot returns the buffered messages oldest first.
func (h *History) Snapshot() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := len(h.items)
	out := make([][]byte, h.count)
	if size == 0 {
		return out
	}
	// The oldest message is at (pos - count) mod size.
	start := (h.pos - h.count + size) % size
	for i := 0; i < h.count; i++ {
		out[i] = h.items[(start+i)%size]
	}
	return out
}
