// Package engine turns an inbound chat message into an allow/deny verdict.
//
// Each message runs through the same fixed sequence:
//
//	ban check -> content check -> karma check -> verdict
//
// The ban check never short-circuits: content is still scanned (and scored)
// for banned identities, and a content denial takes priority over "Banned"
// in the final verdict. Reputation changes are applied to the store as the
// sequence runs, so a weighted word can push karma under the minimum and get
// the same message denied for low karma.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/chatmod/internal/config"
	"github.com/whisper/chatmod/internal/incident"
	"github.com/whisper/chatmod/internal/metrics"
	"github.com/whisper/chatmod/internal/moderation"
	"github.com/whisper/chatmod/internal/reputation"
)

// Deny reasons reported to the sender.
const (
	ReasonBannedWord = "Blacklisted Word"
	ReasonURL        = "Contains URL"
	ReasonLowKarma   = "Too low karma"
	ReasonBanned     = "Banned"
)

// DefaultPenalty is the karma taken for a banned-word or URL denial when the
// message carried no weighted word.
const DefaultPenalty = 1

// Verdict is the engine's decision for one message.
type Verdict struct {
	Allowed bool
	// Command is set for "/"-prefixed messages, which are never moderated.
	Command bool
	Reason  string
	Outcome moderation.Outcome
	// Term is the offending token for content denials.
	Term string
	// Karma is the sender's karma after this message was processed.
	Karma int
}

// IncidentRecorder receives every denied message. *incident.Store
// satisfies it, and IncidentCounter as well.
type IncidentRecorder interface {
	Record(ctx context.Context, inc *incident.Incident) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithIncidents attaches an incident log. Recording failures are logged and
// never change a verdict.
func WithIncidents(r IncidentRecorder) Option {
	return func(e *Engine) {
		e.incidents = r
	}
}

// Engine owns the classifier and drives the reputation store.
type Engine struct {
	classifier   *moderation.Classifier
	store        reputation.Store
	minimumKarma int
	incidents    IncidentRecorder
	logger       *zap.Logger
}

// New creates an engine for the given moderation settings. A nil cfg means
// the built-in defaults.
func New(cfg *config.Moderation, store reputation.Store, logger *zap.Logger, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultModeration()
	}
	e := &Engine{
		classifier:   moderation.NewClassifier(moderation.NewLexicon(cfg)),
		store:        store,
		minimumKarma: cfg.Karma.Minimum,
		logger:       logger.Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	banned, whitelisted, weighted := e.classifier.Lexicon().Size()
	e.logger.Info("engine ready",
		zap.Int("blocked_words", banned),
		zap.Int("whitelisted_urls", whitelisted),
		zap.Int("weighted_words", weighted),
		zap.Int("minimum_karma", e.minimumKarma),
	)
	return e
}

// OnIdentityConnected initialises karma for a newly seen identity.
func (e *Engine) OnIdentityConnected(ctx context.Context, identity string) error {
	if err := e.store.InitKarma(ctx, identity); err != nil {
		return fmt.Errorf("engine: connect %s: %w", identity, err)
	}
	return nil
}

// OnIncomingChat decides whether text from identity may be delivered. A
// store error aborts the pass and is returned with whatever changes were
// already written left in place. When the text itself was blocked the
// content verdict is returned alongside the error so callers can still deny.
func (e *Engine) OnIncomingChat(ctx context.Context, identity, text string) (Verdict, error) {
	start := time.Now()
	defer func() {
		metrics.DecisionLatency.Observe(time.Since(start).Seconds())
	}()

	if strings.HasPrefix(text, "/") {
		metrics.VerdictsTotal.WithLabelValues("command").Inc()
		return Verdict{Allowed: true, Command: true}, nil
	}

	cls := e.classifier.Classify(text)
	fail := func(err error) (Verdict, error) {
		if cls.Outcome.Blocked() {
			return Verdict{Outcome: cls.Outcome, Term: cls.Term, Reason: contentReason(cls.Outcome)}, err
		}
		return Verdict{}, err
	}

	// Karma must exist before it is compared; a chat can arrive before the
	// connect hook ran.
	if err := e.store.InitKarma(ctx, identity); err != nil {
		return fail(fmt.Errorf("engine: init karma: %w", err))
	}

	banned, err := e.store.IsBanned(ctx, identity)
	if err != nil {
		return fail(fmt.Errorf("engine: ban check: %w", err))
	}

	karma, err := e.store.Karma(ctx, identity)
	if err != nil {
		return fail(fmt.Errorf("engine: read karma: %w", err))
	}

	scored := false
	if cls.KarmaDelta != 0 {
		dir, amount := reputation.Increase, cls.KarmaDelta
		if amount < 0 {
			dir, amount = reputation.Decrease, -amount
		}
		karma, err = e.adjust(ctx, identity, dir, amount)
		if err != nil {
			return fail(err)
		}
		scored = true
	}

	v := Verdict{Outcome: cls.Outcome, Term: cls.Term}

	switch {
	case cls.Outcome.Blocked():
		if err := e.recordViolation(ctx, identity); err != nil {
			return fail(err)
		}
		if !scored {
			karma, err = e.adjust(ctx, identity, reputation.Decrease, DefaultPenalty)
			if err != nil {
				return fail(err)
			}
		}
		v.Reason = contentReason(cls.Outcome)

	case karma <= e.minimumKarma:
		if err := e.recordViolation(ctx, identity); err != nil {
			return fail(err)
		}
		v.Outcome = moderation.BlockedLowKarma
		v.Reason = ReasonLowKarma

	case banned:
		v.Reason = ReasonBanned

	default:
		v.Allowed = true
	}
	v.Karma = karma

	if v.Allowed {
		metrics.VerdictsTotal.WithLabelValues("allowed").Inc()
		e.logger.Debug("CLEAN", zap.String("identity", identity), zap.Int("karma", karma))
		return v, nil
	}

	metrics.VerdictsTotal.WithLabelValues(v.Reason).Inc()
	e.logger.Info("FLAGGED",
		zap.String("identity", identity),
		zap.String("reason", v.Reason),
		zap.String("term", v.Term),
		zap.Int("karma", karma),
	)
	e.recordIncident(ctx, identity, text, v)
	return v, nil
}

func contentReason(o moderation.Outcome) string {
	if o == moderation.BlockedURL {
		return ReasonURL
	}
	return ReasonBannedWord
}

func (e *Engine) adjust(ctx context.Context, identity string, dir reputation.Direction, amount int) (int, error) {
	karma, err := e.store.AdjustKarma(ctx, identity, dir, amount)
	if err != nil {
		return 0, fmt.Errorf("engine: adjust karma: %w", err)
	}
	metrics.KarmaAdjustments.WithLabelValues(string(dir)).Inc()
	return karma, nil
}

func (e *Engine) recordViolation(ctx context.Context, identity string) error {
	if _, err := e.store.RecordViolation(ctx, identity); err != nil {
		return fmt.Errorf("engine: record violation: %w", err)
	}
	metrics.ViolationsTotal.Inc()
	return nil
}

func (e *Engine) recordIncident(ctx context.Context, identity, text string, v Verdict) {
	if e.incidents == nil {
		return
	}
	inc := &incident.Incident{
		Identity: identity,
		Reason:   v.Reason,
		Term:     v.Term,
		Message:  text,
		Karma:    v.Karma,
	}
	if err := e.incidents.Record(ctx, inc); err != nil {
		e.logger.Warn("failed to record incident", zap.String("identity", identity), zap.Error(err))
	}
}
