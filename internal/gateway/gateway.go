// Package gateway connects WebSocket chat clients to the moderator. It
// identifies connections, sends every chat line through moderation.check,
// fans allowed lines out to all gateways over NATS, and routes "/" commands
// to the administrative command dispatcher.
//
// When the moderator cannot be reached the gateway fails open: the line is
// delivered and the failure is logged.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/chatmod/internal/commands"
	"github.com/whisper/chatmod/internal/messaging"
	"github.com/whisper/chatmod/internal/metrics"
	"github.com/whisper/chatmod/internal/moderation"
	"github.com/whisper/chatmod/internal/protocol"
	"github.com/whisper/chatmod/internal/ratelimit"
	"github.com/whisper/chatmod/internal/session"
	"github.com/whisper/chatmod/internal/ws"
)

// Moderator is the gateway's view of the moderation service.
type Moderator interface {
	Check(ctx context.Context, req moderation.CheckRequest) (moderation.CheckResult, error)
	Connect(ctx context.Context, ev moderation.ConnectEvent) error
}

// TokenVerifier checks that a hello token was issued for the claimed
// identity. *auth.Verifier satisfies it.
type TokenVerifier interface {
	Verify(token, identity string) error
}

// Bus publishes delivered chat to every gateway, this one included.
type Bus interface {
	PublishChat(data []byte) error
}

// Deps are the collaborators a Gateway needs.
type Deps struct {
	Directory session.Directory
	Moderator Moderator
	Admin     commands.AdminClient
	Auth      commands.Authorizer
	Bus       Bus
	Limiter   ratelimit.Limiter // nil disables chat throttling
	History   int               // lines replayed after hello
	// Tokens verifies hello tokens. When nil no connection is verified and
	// the administrative commands are refused to everyone.
	Tokens TokenVerifier
}

// Gateway holds the chat handlers for one gateway process.
type Gateway struct {
	conns    *ws.ConnectionManager
	dir      session.Directory
	mod      Moderator
	bus      Bus
	limiter  ratelimit.Limiter
	tokens   TokenVerifier
	commands *commands.Dispatcher

	// live orders history replay against delivery: a connection goes live
	// while holding it, so every line is either replayed or broadcast to it.
	live    sync.Mutex
	history *History

	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Gateway over the server's connection registry.
func New(conns *ws.ConnectionManager, deps Deps, timeout time.Duration, logger *zap.Logger) *Gateway {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	g := &Gateway{
		conns:   conns,
		dir:     deps.Directory,
		mod:     deps.Moderator,
		bus:     deps.Bus,
		limiter: deps.Limiter,
		tokens:  deps.Tokens,
		history: NewHistory(deps.History),
		timeout: timeout,
		logger:  logger.Named("gateway"),
	}
	g.commands = commands.NewDispatcher(deps.Directory, deps.Auth, deps.Admin, g, timeout, logger)
	return g
}

// Register binds the client message handlers.
func (g *Gateway) Register(d *ws.MessageDispatcher) {
	d.Register(protocol.TypeHello, g.handleHello)
	d.Register(protocol.TypeMessage, g.handleMessage)
}

func (g *Gateway) handleHello(conn *ws.Connection, msg interface{}) {
	hello, ok := msg.(protocol.HelloMsg)
	if !ok {
		return
	}
	if _, _, identified := conn.Identity(); identified {
		g.sendError(conn, protocol.CodeAlreadyHello, "connection already identified")
		return
	}

	name := strings.TrimSpace(hello.Name)
	if name == "" {
		name = hello.Identity
	}

	verified := false
	if hello.Token != "" {
		if err := g.verify(hello.Token, hello.Identity); err != nil {
			g.logger.Warn("identity token rejected", zap.String("identity", hello.Identity), zap.Error(err))
			g.sendError(conn, protocol.CodeUnauthorized, "invalid identity token")
			return
		}
		verified = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if err := g.dir.Register(ctx, conn.ID, session.Identity{ID: hello.Identity, Name: name}); err != nil {
		g.logger.Error("directory register failed", zap.String("identity", hello.Identity), zap.Error(err))
	}
	if err := g.mod.Connect(ctx, moderation.ConnectEvent{Identity: hello.Identity, Name: name}); err != nil {
		g.logger.Warn("connect event failed", zap.String("identity", hello.Identity), zap.Error(err))
	}

	g.send(conn, protocol.TypeWelcome, protocol.WelcomeMsg{SessionID: conn.ID, Identity: hello.Identity})

	g.live.Lock()
	for _, line := range g.history.Snapshot() {
		if err := conn.WriteMessage(line); err != nil {
			break
		}
	}
	conn.SetIdentity(hello.Identity, name, verified)
	g.live.Unlock()

	g.logger.Info("identity connected",
		zap.String("session", conn.ID),
		zap.String("identity", hello.Identity),
		zap.String("name", name),
		zap.Bool("verified", verified))
}

func (g *Gateway) verify(token, identity string) error {
	if g.tokens == nil {
		return errors.New("gateway: identity tokens are not configured")
	}
	return g.tokens.Verify(token, identity)
}

func (g *Gateway) handleMessage(conn *ws.Connection, msg interface{}) {
	chat, ok := msg.(protocol.ChatMsg)
	if !ok {
		return
	}
	identity, name, identified := conn.Identity()
	if !identified {
		g.sendError(conn, protocol.CodeNotHello, "send hello first")
		return
	}
	text := strings.TrimSpace(chat.Text)
	switch err := protocol.ValidateText(text); {
	case errors.Is(err, protocol.ErrEmptyText):
		return
	case errors.Is(err, protocol.ErrTextTooLong):
		g.sendError(conn, protocol.CodeTooLong, fmt.Sprintf("message exceeds %d characters", protocol.MaxTextChars))
		return
	case err != nil:
		g.sendError(conn, protocol.CodeBadRequest, err.Error())
		return
	}
	metrics.MessagesTotal.WithLabelValues("received").Inc()

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if err := g.dir.Touch(ctx, conn.ID); err != nil {
		g.logger.Debug("session touch failed", zap.String("session", conn.ID), zap.Error(err))
	}

	if g.limiter != nil && !strings.HasPrefix(text, "/") {
		// Limiter errors fail open; the limiter has already logged them.
		if ok, _ := g.limiter.Allow(ctx, identity); !ok {
			metrics.MessagesTotal.WithLabelValues("throttled").Inc()
			g.sendError(conn, protocol.CodeRateLimited, "you are sending messages too quickly")
			return
		}
	}

	now := time.Now().Unix()
	res, err := g.mod.Check(ctx, moderation.CheckRequest{Identity: identity, Text: text, Ts: now})
	if err != nil {
		g.logger.Warn("moderation check failed, allowing message", zap.String("identity", identity), zap.Error(err))
		res = moderation.CheckResult{Identity: identity, Allowed: true, Command: strings.HasPrefix(text, "/")}
	}

	switch {
	case res.Command:
		actor := commands.Actor{Identity: identity, Verified: conn.Verified()}
		if !g.commands.Handle(ctx, actor, text) {
			g.sendError(conn, protocol.CodeBadRequest, "unknown command")
		}

	case !res.Allowed:
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		g.send(conn, protocol.TypeBlocked, protocol.BlockedMsg{Reason: res.Reason, Reply: res.Reply})
		g.logger.Info("message blocked", zap.String("identity", identity), zap.String("reason", res.Reason))

	default:
		g.publish(protocol.ServerChatMsg{From: identity, Name: name, Text: text, Ts: now})
	}
}

func (g *Gateway) publish(msg protocol.ServerChatMsg) {
	data, err := protocol.NewServerMessage(protocol.TypeChat, msg)
	if err != nil {
		g.logger.Error("failed to build chat message", zap.Error(err))
		return
	}
	metrics.MessagesTotal.WithLabelValues("delivered").Inc()
	if err := g.bus.PublishChat(data); err != nil {
		g.logger.Error("chat publish failed, delivering locally", zap.Error(err))
		g.Deliver(data)
	}
}

// Deliver writes a chat message received from the bus to every identified
// local connection and keeps it for replay.
func (g *Gateway) Deliver(data []byte) {
	g.live.Lock()
	g.history.Add(data)
	n := g.conns.Broadcast(data)
	g.live.Unlock()
	g.logger.Debug("chat delivered", zap.Int("connections", n))
}

// Reply sends a command reply line to every local connection of identity.
// It implements commands.Replier.
func (g *Gateway) Reply(identity, text string) {
	for _, c := range g.conns.All() {
		if id, _, ok := c.Identity(); ok && id == identity {
			g.send(c, protocol.TypeReply, protocol.ReplyMsg{Text: text})
		}
	}
}

// OnDisconnect removes a closed connection from the directory. Sessions
// that never finished hello are unregistered too; that is a no-op.
func (g *Gateway) OnDisconnect(conn *ws.Connection) {
	identity, _, _ := conn.Identity()
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	if err := g.dir.Unregister(ctx, conn.ID); err != nil {
		g.logger.Warn("directory unregister failed", zap.String("session", conn.ID), zap.Error(err))
	}
	g.logger.Info("identity disconnected", zap.String("session", conn.ID), zap.String("identity", identity))
}

func (g *Gateway) send(conn *ws.Connection, msgType string, payload interface{}) {
	if err := conn.Send(msgType, payload); err != nil {
		g.logger.Debug("send failed", zap.String("session", conn.ID), zap.String("type", msgType), zap.Error(err))
	}
}

func (g *Gateway) sendError(conn *ws.Connection, code, message string) {
	g.send(conn, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}

// NATSModerator talks to the moderator over NATS request/reply.
type NATSModerator struct {
	r commands.Requester
}

// NewNATSModerator wraps a NATS requester.
func NewNATSModerator(r commands.Requester) *NATSModerator {
	return &NATSModerator{r: r}
}

// Check implements Moderator.
func (m *NATSModerator) Check(ctx context.Context, req moderation.CheckRequest) (moderation.CheckResult, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return moderation.CheckResult{}, fmt.Errorf("gateway: marshal check request: %w", err)
	}
	reply, err := m.r.Request(ctx, messaging.SubjectCheck, data)
	if err != nil {
		return moderation.CheckResult{}, err
	}
	var res moderation.CheckResult
	if err := json.Unmarshal(reply, &res); err != nil {
		return moderation.CheckResult{}, fmt.Errorf("gateway: decode check result: %w", err)
	}
	return res, nil
}

// Connect implements Moderator. It returns once the moderator has
// initialised the identity's karma.
func (m *NATSModerator) Connect(ctx context.Context, ev moderation.ConnectEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("gateway: marshal connect event: %w", err)
	}
	_, err = m.r.Request(ctx, messaging.SubjectConnect, data)
	return err
}
