// Package commands executes the administrative chat commands typed by
// players: /ban, /unban, /karma-reset and /stats. The caller's permission
// is checked, the target is resolved through the identity directory, and
// the action is sent to the moderator; every outcome ends in a reply to the
// caller.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/chatmod/internal/messaging"
	"github.com/whisper/chatmod/internal/moderation"
	"github.com/whisper/chatmod/internal/session"
)

// Permissions checked before a command runs.
const (
	PermBan   = "chatmod.ban"   // ban, unban, karma-reset
	PermStats = "chatmod.stats" // stats
)

// Replier delivers a reply line to a connected identity.
type Replier interface {
	Reply(identity, text string)
}

// Actor is the identity issuing a command. Verified is false when the
// client only claimed the identity; such actors hold no permissions.
type Actor struct {
	Identity string
	Verified bool
}

// Authorizer answers whether an identity holds a permission.
type Authorizer interface {
	HasPermission(identity, perm string) bool
}

// AdminClient sends an authorised request to the moderator.
type AdminClient interface {
	Admin(ctx context.Context, req moderation.AdminRequest) (moderation.AdminResult, error)
}

type entry struct {
	command string
	perm    string
}

// table maps the typed command to the moderator command and its permission.
// Parse strips the legacy "cm." prefix first.
var table = map[string]entry{
	"ban":         {moderation.CommandBan, PermBan},
	"unban":       {moderation.CommandUnban, PermBan},
	"karma-reset": {moderation.CommandKarmaReset, PermBan},
	"stats":       {moderation.CommandStats, PermStats},
}

// Parse splits a "/name args" line. ok is false for text that is not a
// command at all.
func Parse(text string) (name, arg string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	text = text[1:]
	name, arg, _ = strings.Cut(text, " ")
	name = strings.TrimPrefix(strings.ToLower(name), "cm.")
	arg = strings.Trim(strings.TrimSpace(arg), `"`)
	return name, arg, name != ""
}

// Dispatcher runs administrative commands.
type Dispatcher struct {
	dir     session.Directory
	auth    Authorizer
	admin   AdminClient
	replier Replier
	timeout time.Duration
	logger  *zap.Logger
}

// NewDispatcher wires a dispatcher. timeout bounds directory and moderator
// calls for a single command.
func NewDispatcher(dir session.Directory, auth Authorizer, admin AdminClient, replier Replier, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Dispatcher{
		dir:     dir,
		auth:    auth,
		admin:   admin,
		replier: replier,
		timeout: timeout,
		logger:  logger.Named("commands"),
	}
}

// Handle runs text for actor. It returns false when text is not one of the
// administrative commands; nothing is replied in that case.
func (d *Dispatcher) Handle(ctx context.Context, caller Actor, text string) bool {
	actor := caller.Identity
	name, arg, ok := Parse(text)
	if !ok {
		return false
	}
	cmd, ok := table[name]
	if !ok {
		return false
	}

	if !caller.Verified || !d.auth.HasPermission(actor, cmd.perm) {
		d.logger.Info("permission denied",
			zap.String("actor", actor),
			zap.Bool("verified", caller.Verified),
			zap.String("command", cmd.command))
		d.reply(actor, moderation.FormatAdminReply(moderation.MsgNoPermission))
		return true
	}
	if arg == "" {
		d.reply(actor, moderation.FormatAdminReply(moderation.MsgNoTarget))
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	target, found, err := d.dir.Resolve(ctx, arg)
	switch {
	case err != nil:
		d.logger.Error("resolve failed", zap.String("partial", arg), zap.Error(err))
		d.reply(actor, moderation.FormatAdminReply(moderation.MsgUnavailable))
		return true
	case !found:
		d.reply(actor, moderation.FormatAdminReply(moderation.MsgTargetNotFound))
		return true
	}

	res, err := d.admin.Admin(ctx, moderation.AdminRequest{
		Command:  cmd.command,
		Identity: target.ID,
		Name:     target.Name,
		Actor:    actor,
	})
	if err != nil {
		d.logger.Error("admin request failed",
			zap.String("command", cmd.command), zap.String("identity", target.ID), zap.Error(err))
		d.reply(actor, moderation.FormatAdminReply(moderation.MsgUnavailable))
		return true
	}

	for _, line := range strings.Split(res.Message, "\n") {
		if line != "" {
			d.reply(actor, line)
		}
	}
	return true
}

func (d *Dispatcher) reply(identity, text string) {
	d.replier.Reply(identity, text)
}

// StaticAuthorizer grants every permission to a fixed set of identities.
type StaticAuthorizer map[string]struct{}

// NewStaticAuthorizer builds an authorizer from the configured admins.
func NewStaticAuthorizer(admins []string) StaticAuthorizer {
	a := make(StaticAuthorizer, len(admins))
	for _, id := range admins {
		a[id] = struct{}{}
	}
	return a
}

// HasPermission reports whether identity is an admin.
func (a StaticAuthorizer) HasPermission(identity, _ string) bool {
	_, ok := a[identity]
	return ok
}

// Requester is the subset of *messaging.NATSClient used by NATSAdmin.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// NATSAdmin sends admin requests over moderation.admin.
type NATSAdmin struct {
	r Requester
}

// NewNATSAdmin wraps a NATS requester.
func NewNATSAdmin(r Requester) *NATSAdmin {
	return &NATSAdmin{r: r}
}

// Admin implements AdminClient.
func (a *NATSAdmin) Admin(ctx context.Context, req moderation.AdminRequest) (moderation.AdminResult, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return moderation.AdminResult{}, fmt.Errorf("commands: marshal admin request: %w", err)
	}
	reply, err := a.r.Request(ctx, messaging.SubjectAdmin, data)
	if err != nil {
		return moderation.AdminResult{}, err
	}
	var res moderation.AdminResult
	if err := json.Unmarshal(reply, &res); err != nil {
		return moderation.AdminResult{}, fmt.Errorf("commands: decode admin result: %w", err)
	}
	return res, nil
}
