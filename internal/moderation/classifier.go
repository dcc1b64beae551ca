package moderation

import "strings"

// Outcome is the content classification of a single message.
type Outcome int

const (
	Allowed Outcome = iota
	BlockedBannedWord
	BlockedURL
	BlockedLowKarma
)

// String returns the metric/log label for the outcome.
func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case BlockedBannedWord:
		return "banned_word"
	case BlockedURL:
		return "url"
	case BlockedLowKarma:
		return "low_karma"
	default:
		return "unknown"
	}
}

// Blocked reports whether the outcome rejects the message.
func (o Outcome) Blocked() bool {
	return o != Allowed
}

// Classification is the result of Classify.
type Classification struct {
	Outcome Outcome
	// Term is the token that caused a block, empty when allowed.
	Term string
	// KarmaDelta is the weight of the last weighted word seen, 0 when none.
	KarmaDelta int
	// WeightedWord is the token KarmaDelta came from.
	WeightedWord string
}

// Classifier inspects message text against a Lexicon.
type Classifier struct {
	lexicon *Lexicon
}

// NewClassifier creates a Classifier over the given lexicon.
func NewClassifier(lexicon *Lexicon) *Classifier {
	return &Classifier{lexicon: lexicon}
}

// Lexicon returns the lexicon the classifier was built with.
func (c *Classifier) Lexicon() *Lexicon {
	return c.lexicon
}

// Classify evaluates text in a fixed order: weighted words, banned words
// (case-insensitive), then unapproved URLs. When several weighted words
// appear only the last one's weight is kept. The karma delta is reported
// even when the message is blocked.
func (c *Classifier) Classify(text string) Classification {
	var res Classification

	for _, tok := range tokenize(text) {
		if w, ok := c.lexicon.Weight(tok); ok {
			res.KarmaDelta = w
			res.WeightedWord = tok
		}
	}

	if term, ok := c.lexicon.ContainsBannedWord(strings.ToLower(text)); ok {
		res.Outcome = BlockedBannedWord
		res.Term = term
		return res
	}

	if term, ok := c.lexicon.ContainsURL(text); ok {
		res.Outcome = BlockedURL
		res.Term = term
		return res
	}

	res.Outcome = Allowed
	return res
}
