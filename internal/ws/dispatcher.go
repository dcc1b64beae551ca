package ws

import (
	"go.uber.org/zap"

	"github.com/whisper/chatmod/internal/protocol"
)

// MessageHandler is the callback signature for handling a parsed client
// message. msg is the concrete struct returned by
// protocol.ParseClientMessage (e.g. protocol.HelloMsg, protocol.ChatMsg).
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes incoming WebSocket messages to registered
// handlers based on the message type. It answers ping internally and sends
// structured errors for malformed or unsupported messages.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	logger   *zap.Logger
}

// NewMessageDispatcher creates an empty MessageDispatcher.
func NewMessageDispatcher(logger *zap.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger.Named("dispatch"),
	}
}

// Register associates a MessageHandler with a message type. If a handler was
// already registered for the given type, it is silently replaced.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the onMessage callback implementation. It parses the raw bytes
// into a typed message, handles ping internally, and routes all other types
// to the registered handler.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		d.logger.Debug("parse error", zap.String("session", conn.ID), zap.Error(err))
		d.SendError(conn, protocol.CodeBadRequest, "invalid message format")
		return
	}

	if msgType == protocol.TypePing {
		d.sendPong(conn)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		d.logger.Debug("unsupported message type", zap.String("type", msgType), zap.String("session", conn.ID))
		d.SendError(conn, protocol.CodeBadRequest, "unsupported message type")
		return
	}

	handler(conn, msg)
}

// SendError sends a structured error message back to the client. Failures
// are logged but not propagated.
func (d *MessageDispatcher) SendError(conn *Connection, code string, message string) {
	err := conn.Send(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: message,
	})
	if err != nil {
		d.logger.Debug("failed to send error", zap.String("session", conn.ID), zap.Error(err))
	}
}

func (d *MessageDispatcher) sendPong(conn *Connection) {
	if err := conn.Send(protocol.TypePong, protocol.PongMsg{}); err != nil {
		d.logger.Debug("failed to send pong", zap.String("session", conn.ID), zap.Error(err))
	}
}
