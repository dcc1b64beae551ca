// Package moderation screens chat messages against the configured lexicon:
// banned words, whitelisted URLs and karma-weighted words. Everything in this
// package is a pure function of the message text and the lexicon, so a single
// Classifier is safe for concurrent use.
package moderation

import (
	"strings"

	"github.com/whisper/chatmod/internal/config"
)

// Lexicon holds the word and URL sets loaded from configuration. It is
// immutable after construction.
type Lexicon struct {
	bannedWords     map[string]struct{} // lower-cased
	whitelistedURLs map[string]struct{} // literal tokens
	weightedWords   map[string]int
}

// NewLexicon builds a Lexicon from the moderation configuration. A nil
// configuration yields an empty lexicon.
func NewLexicon(cfg *config.Moderation) *Lexicon {
	if cfg == nil {
		return NewLexiconWithTerms(nil, nil, nil)
	}
	return NewLexiconWithTerms(cfg.BlockedWords, cfg.WhitelistedURLs, cfg.Karma.WordWeights)
}

// NewLexiconWithTerms builds a Lexicon from explicit term lists. Banned words
// are trimmed and lower-cased; blank entries are skipped in every category.
func NewLexiconWithTerms(banned, whitelisted []string, weights map[string]int) *Lexicon {
	l := &Lexicon{
		bannedWords:     make(map[string]struct{}, len(banned)),
		whitelistedURLs: make(map[string]struct{}, len(whitelisted)),
		weightedWords:   make(map[string]int, len(weights)),
	}
	for _, w := range banned {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		l.bannedWords[w] = struct{}{}
	}
	for _, u := range whitelisted {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		l.whitelistedURLs[u] = struct{}{}
	}
	for w, weight := range weights {
		if strings.TrimSpace(w) == "" {
			continue
		}
		l.weightedWords[w] = weight
	}
	return l
}

// IsBanned reports whether token is a banned word. The match is exact and
// case-sensitive; callers lower-case the input first.
func (l *Lexicon) IsBanned(token string) bool {
	_, ok := l.bannedWords[token]
	return ok
}

// IsWhitelisted reports whether token is an approved URL.
func (l *Lexicon) IsWhitelisted(token string) bool {
	_, ok := l.whitelistedURLs[token]
	return ok
}

// Weight returns the karma weight of token, if it has one.
func (l *Lexicon) Weight(token string) (int, bool) {
	w, ok := l.weightedWords[token]
	return w, ok
}

// ContainsBannedWord returns the first banned token in text.
func (l *Lexicon) ContainsBannedWord(text string) (string, bool) {
	for _, tok := range tokenize(text) {
		if l.IsBanned(tok) {
			return tok, true
		}
	}
	return "", false
}

// ContainsURL returns the first token in text that is a well-formed absolute
// URI and is not whitelisted.
func (l *Lexicon) ContainsURL(text string) (string, bool) {
	for _, tok := range tokenize(text) {
		if l.IsWhitelisted(tok) {
			continue
		}
		if isAbsoluteURI(tok) {
			return tok, true
		}
	}
	return "", false
}

// Size returns the number of entries in each category.
func (l *Lexicon) Size() (banned, whitelisted, weighted int) {
	return len(l.bannedWords), len(l.whitelistedURLs), len(l.weightedWords)
}

// tokenize splits on single spaces. Runs of spaces produce empty tokens,
// which never match any category.
func tokenize(text string) []string {
	return strings.Split(text, " ")
}
