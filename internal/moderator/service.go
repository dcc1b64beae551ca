// Package moderator serves the moderation engine over NATS request/reply.
// Every handler takes the raw request body and returns the raw reply body,
// so the transport stays in internal/messaging and the handlers can be
// tested without a server.
//
// Store failures on the chat path fail open: the message is allowed, the
// error is logged and counted, and the next message is processed normally.
package moderator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/chatmod/internal/config"
	"github.com/whisper/chatmod/internal/engine"
	"github.com/whisper/chatmod/internal/messaging"
	"github.com/whisper/chatmod/internal/metrics"
	"github.com/whisper/chatmod/internal/moderation"
)

// Responder is the subset of *messaging.NATSClient the service needs.
type Responder interface {
	Respond(subject string, handler func(data []byte) []byte) error
}

// Service binds an engine to the moderation subjects.
type Service struct {
	engine  *engine.Engine
	color   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewService creates a service. cfg supplies the block colour used in
// replies; timeout bounds each request's store work.
func NewService(e *engine.Engine, cfg *config.Moderation, timeout time.Duration, logger *zap.Logger) *Service {
	color := config.DefaultBlockMessageColor
	if cfg != nil && cfg.BlockMessageColor != "" {
		color = cfg.BlockMessageColor
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Service{
		engine:  e,
		color:   color,
		timeout: timeout,
		logger:  logger.Named("moderator"),
	}
}

// Register subscribes the handlers on their subjects.
func (s *Service) Register(r Responder) error {
	if err := r.Respond(messaging.SubjectCheck, s.HandleCheck); err != nil {
		return err
	}
	if err := r.Respond(messaging.SubjectConnect, s.HandleConnect); err != nil {
		return err
	}
	return r.Respond(messaging.SubjectAdmin, s.HandleAdmin)
}

func (s *Service) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// HandleCheck answers a CheckRequest with a CheckResult.
func (s *Service) HandleCheck(data []byte) []byte {
	var req moderation.CheckRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Error("failed to unmarshal check request", zap.Error(err))
		return s.marshal(moderation.CheckResult{Allowed: true})
	}

	ctx, cancel := s.requestContext()
	defer cancel()

	v, err := s.engine.OnIncomingChat(ctx, req.Identity, req.Text)
	if err != nil {
		metrics.StoreErrors.Inc()
		if v.Reason == "" {
			s.logger.Error("moderation failed, allowing message",
				zap.String("identity", req.Identity), zap.Error(err))
			return s.marshal(moderation.CheckResult{Identity: req.Identity, Allowed: true})
		}
		s.logger.Error("moderation failed, denying blocked content",
			zap.String("identity", req.Identity),
			zap.String("reason", v.Reason),
			zap.Error(err))
	}

	res := moderation.CheckResult{
		Identity: req.Identity,
		Allowed:  v.Allowed,
		Command:  v.Command,
		Reason:   v.Reason,
	}
	if !v.Allowed {
		res.Reply = moderation.FormatBlockReply(s.color, v.Reason)
	}
	return s.marshal(res)
}

// HandleConnect initialises karma for a ConnectEvent. The reply is an empty
// JSON object once the write is durable.
func (s *Service) HandleConnect(data []byte) []byte {
	var ev moderation.ConnectEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Error("failed to unmarshal connect event", zap.Error(err))
		return []byte("{}")
	}

	ctx, cancel := s.requestContext()
	defer cancel()

	if err := s.engine.OnIdentityConnected(ctx, ev.Identity); err != nil {
		metrics.StoreErrors.Inc()
		s.logger.Error("karma init failed", zap.String("identity", ev.Identity), zap.Error(err))
	} else {
		s.logger.Debug("identity connected", zap.String("identity", ev.Identity), zap.String("name", ev.Name))
	}
	return []byte("{}")
}

// HandleAdmin executes an authorised AdminRequest and answers with the reply
// text for the caller.
func (s *Service) HandleAdmin(data []byte) []byte {
	var req moderation.AdminRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Error("failed to unmarshal admin request", zap.Error(err))
		return s.marshal(moderation.AdminResult{Message: moderation.FormatAdminReply(moderation.MsgUnavailable)})
	}
	if req.Identity == "" {
		return s.marshal(moderation.AdminResult{Message: moderation.FormatAdminReply(moderation.MsgNoTarget)})
	}

	ctx, cancel := s.requestContext()
	defer cancel()

	res := s.admin(ctx, req)
	s.logger.Info("admin command",
		zap.String("command", req.Command),
		zap.String("actor", req.Actor),
		zap.String("identity", req.Identity),
		zap.Bool("ok", res.OK),
	)
	return s.marshal(res)
}

func (s *Service) admin(ctx context.Context, req moderation.AdminRequest) moderation.AdminResult {
	name := req.Name
	if name == "" {
		name = req.Identity
	}

	switch req.Command {
	case moderation.CommandBan:
		err := s.engine.Ban(ctx, req.Identity)
		switch {
		case errors.Is(err, engine.ErrAlreadyBanned):
			return moderation.AdminResult{Message: moderation.FormatAlreadyBanned(s.color, name)}
		case err != nil:
			return s.failed(req, err)
		}
		return moderation.AdminResult{OK: true, Message: moderation.FormatBanned(s.color, name)}

	case moderation.CommandUnban:
		err := s.engine.Unban(ctx, req.Identity)
		switch {
		case errors.Is(err, engine.ErrNotBanned):
			return moderation.AdminResult{Message: moderation.FormatNotBanned(name)}
		case err != nil:
			return s.failed(req, err)
		}
		return moderation.AdminResult{OK: true, Message: moderation.FormatUnbanned(name)}

	case moderation.CommandKarmaReset:
		if err := s.engine.ResetKarma(ctx, req.Identity); err != nil {
			return s.failed(req, err)
		}
		return moderation.AdminResult{OK: true, Message: moderation.FormatKarmaReset(name)}

	case moderation.CommandStats:
		st, err := s.engine.Stats(ctx, req.Identity)
		if err != nil {
			return s.failed(req, err)
		}
		lines := moderation.FormatStats(s.color, st.Violations, st.HasViolations, st.Banned, st.Karma)
		if st.HasIncidentLog {
			lines = append(lines, moderation.FormatRecentIncidents(st.RecentIncidents, int(engine.IncidentWindow.Hours())))
		}
		return moderation.AdminResult{OK: true, Message: strings.Join(lines, "\n")}

	default:
		return moderation.AdminResult{Message: moderation.FormatAdminReply("Unknown command %q.", req.Command)}
	}
}

func (s *Service) failed(req moderation.AdminRequest, err error) moderation.AdminResult {
	metrics.StoreErrors.Inc()
	s.logger.Error("admin command failed",
		zap.String("command", req.Command), zap.String("identity", req.Identity), zap.Error(err))
	return moderation.AdminResult{Message: moderation.FormatAdminReply(moderation.MsgUnavailable)}
}

func (s *Service) marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal reply", zap.Error(err))
		return []byte("{}")
	}
	return data
}
