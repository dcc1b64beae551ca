// Package ws handles WebSocket connection management: upgrading HTTP
// connections, keeping a registry of live sessions, reading frames on one
// goroutine per connection and dispatching messages to handlers.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whisper/chatmod/internal/metrics"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	MaxConnections int           // hard cap on total connections
	MaxFrameSize   int64         // larger data frames close the connection
	ReadTimeout    time.Duration // idle limit between frames, 0 disables it
	WriteTimeout   time.Duration // timeout for WebSocket write operations
	Heartbeat      HeartbeatConfig
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	hb := DefaultHeartbeatConfig()
	return ServerConfig{
		ListenAddr:     ":8080",
		MaxConnections: 10000,
		MaxFrameSize:   16 << 10,
		ReadTimeout:    hb.Interval + hb.Timeout,
		WriteTimeout:   10 * time.Second,
		Heartbeat:      hb,
	}
}

// Server is the WebSocket server built on gobwas/ws. Each upgraded
// connection gets its own read goroutine; messages from one connection are
// handled in the order they arrive.
type Server struct {
	config       ServerConfig
	conns        *ConnectionManager
	onMessage    func(conn *Connection, data []byte) // message handler callback
	onDisconnect func(conn *Connection)              // called when a connection is removed
	httpServer   *http.Server
	routes       map[string]http.Handler // extra routes served next to /ws
	logger       *zap.Logger
	done         chan struct{}
	stopOnce     sync.Once
	startedAt    time.Time // server start time for uptime calculation
}

// NewServer creates a Server with the given configuration and message
// callback. onMessage is called from the connection's read goroutine for
// every complete text frame.
func NewServer(config ServerConfig, onMessage func(conn *Connection, data []byte), logger *zap.Logger) *Server {
	return &Server{
		config:    config,
		conns:     NewConnectionManager(),
		onMessage: onMessage,
		routes:    make(map[string]http.Handler),
		logger:    logger.Named("ws"),
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
}

// Handle adds a route to the listener, e.g. /metrics. Call before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.routes[pattern] = h
}

// Handler returns the HTTP handler serving /ws, /health and any extra
// routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	for pattern, h := range s.routes {
		mux.Handle(pattern, h)
	}
	return mux
}

// Start starts the heartbeat monitor and blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	StartHeartbeat(s, s.config.Heartbeat)

	s.logger.Info("server listening",
		zap.String("addr", s.config.ListenAddr),
		zap.Int("max_conns", s.config.MaxConnections),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// handleUpgrade upgrades an HTTP request to a WebSocket connection using
// the gobwas/ws zero-copy upgrader, registers it and starts its read loop.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxConnections > 0 && s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := newConnection(uuid.New().String(), conn)
	c.writeTimeout = s.config.WriteTimeout
	s.conns.Add(c)
	metrics.ConnectionsTotal.Inc()

	s.logger.Debug("new connection",
		zap.String("session", c.ID),
		zap.String("remote", conn.RemoteAddr().String()),
		zap.Int("total", s.conns.Count()),
	)

	go s.readLoop(c)
}

// handleHealth responds with the server's health status as JSON, including
// the current connection count and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// errClosed stops the read loop after a close frame was answered.
var errClosed = errors.New("ws: closed by peer")

// readLoop reads messages until the connection fails or the client closes
// it. Fragmented messages are joined before dispatch. Control frames are
// answered inline, including those interleaved with fragments; text
// messages go to onMessage.
func (s *Server) readLoop(c *Connection) {
	defer s.RemoveConnection(c)

	rd := &wsutil.Reader{
		Source:       c.Conn,
		State:        ws.StateServerSide,
		MaxFrameSize: s.config.MaxFrameSize,
		OnIntermediate: func(h ws.Header, r io.Reader) error {
			return s.handleControl(c, h, r)
		},
	}

	for {
		if s.config.ReadTimeout > 0 {
			_ = c.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		header, err := rd.NextFrame()
		if err != nil {
			s.readFailed(c, err)
			return
		}
		c.touch()

		if header.OpCode.IsControl() {
			if err := s.handleControl(c, header, rd); err != nil {
				return
			}
			continue
		}

		data, err := s.readMessage(rd)
		if err != nil {
			s.readFailed(c, err)
			return
		}

		if len(data) == 0 || header.OpCode != ws.OpText {
			continue
		}
		if s.onMessage != nil {
			s.onMessage(c, data)
		}
	}
}

// readMessage reads the rest of the current message across continuation
// frames, capping the joined payload at MaxFrameSize.
func (s *Server) readMessage(rd *wsutil.Reader) ([]byte, error) {
	var src io.Reader = rd
	if s.config.MaxFrameSize > 0 {
		src = io.LimitReader(rd, s.config.MaxFrameSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if s.config.MaxFrameSize > 0 && int64(len(data)) > s.config.MaxFrameSize {
		return nil, wsutil.ErrFrameTooLarge
	}
	return data, nil
}

// handleControl answers a control frame whose payload is in r.
func (s *Server) handleControl(c *Connection, h ws.Header, r io.Reader) error {
	payload, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	switch h.OpCode {
	case ws.OpClose:
		_ = c.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
		return errClosed
	case ws.OpPing:
		return c.writeFrame(ws.NewPongFrame(payload))
	}
	return nil
}

func (s *Server) readFailed(c *Connection, err error) {
	switch {
	case errors.Is(err, wsutil.ErrFrameTooLarge):
		s.logger.Warn("message too large", zap.String("session", c.ID))
		_ = c.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusMessageTooBig, "")))
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, errClosed):
	default:
		s.logger.Debug("read failed", zap.String("session", c.ID), zap.Error(err))
	}
}

// SetOnDisconnect registers a callback invoked once when a connection is
// removed (read error, heartbeat timeout, close frame or shutdown).
func (s *Server) SetOnDisconnect(fn func(conn *Connection)) {
	s.onDisconnect = fn
}

// RemoveConnection unregisters and closes a connection. It is safe to call
// from several goroutines; only the first call runs the disconnect hook.
func (s *Server) RemoveConnection(c *Connection) {
	if !s.conns.Remove(c.ID) {
		return
	}
	metrics.ConnectionsTotal.Dec()

	if s.onDisconnect != nil {
		s.onDisconnect(c)
	}

	s.logger.Debug("connection closed", zap.String("session", c.ID), zap.Int("total", s.conns.Count()))
}

// Connections returns the ConnectionManager for external access to
// connection state.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown stops the HTTP listener and the heartbeat, then closes every
// active connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.stopOnce.Do(func() { close(s.done) })

	var err error
	if s.httpServer != nil {
		if err = s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown error", zap.Error(err))
		}
	}

	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}

	s.logger.Info("server stopped")
	return err
}
