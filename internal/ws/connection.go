package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/whisper/chatmod/internal/protocol"
)

// Connection represents a single WebSocket client connection with its
// associated metadata and a write mutex for serializing outbound frames.
type Connection struct {
	ID        string    // session ID (UUID)
	Conn      net.Conn  // underlying TCP connection
	CreatedAt time.Time // when the connection was established

	lastSeen     atomic.Int64  // unix nanos of the last frame read
	writeMu      sync.Mutex    // serializes writes to this connection
	writeTimeout time.Duration // per-write deadline, 0 disables it

	mu       sync.RWMutex
	identity string // set once the client says hello
	name     string
	verified bool // identity proven by a signed token
}

func newConnection(id string, conn net.Conn) *Connection {
	c := &Connection{ID: id, Conn: conn, CreatedAt: time.Now()}
	c.touch()
	return c
}

func (c *Connection) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns when a frame was last read from the client.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// SetIdentity binds the connection to a chat identity. verified records
// whether the client proved the identity.
func (c *Connection) SetIdentity(identity, name string, verified bool) {
	c.mu.Lock()
	c.identity, c.name, c.verified = identity, name, verified
	c.mu.Unlock()
}

// Verified reports whether the bound identity was proven at hello.
func (c *Connection) Verified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verified
}

// Identity returns the bound identity; ok is false before hello.
func (c *Connection) Identity() (identity, name string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity, c.name, c.identity != ""
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// Send encodes payload as a server message of msgType and writes it.
func (c *Connection) Send(msgType string, payload interface{}) error {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		return err
	}
	return c.WriteMessage(data)
}

func (c *Connection) writeFrame(f ws.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	return ws.WriteFrame(c.Conn, f)
}

// setWriteDeadline must be called with writeMu held.
func (c *Connection) setWriteDeadline() {
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry of live connections keyed by
// session ID.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{byID: make(map[string]*Connection)}
}

// Add registers a new connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove unregisters a connection by session ID and closes it. Returns true
// if the connection was found and removed, false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given session ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// Broadcast sends a message to every connection that has said hello and
// returns how many writes succeeded. Failed connections are cleaned up by
// their read loop or the heartbeat.
func (cm *ConnectionManager) Broadcast(msg []byte) int {
	sent := 0
	for _, conn := range cm.All() {
		if _, _, ok := conn.Identity(); !ok {
			continue
		}
		if err := conn.WriteMessage(msg); err == nil {
			sent++
		}
	}
	return sent
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
