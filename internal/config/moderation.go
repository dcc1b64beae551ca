package config

import (
	"errors"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the moderation file omits a key or the key is malformed.
const (
	DefaultBlockMessage      = "Your message has been blocked due to a banned word."
	DefaultBlockMessageColor = "#e63946"
	DefaultMinimumKarma      = -10
)

// Moderation is the typed moderation configuration. It is built once at
// startup and shared read-only by the lexicon and the decision engine.
//
// The file layout follows the chat plugin format:
//
//	BlockMessage: "..."
//	BlockMessageColor: "#e63946"
//	BlockedWords: [word, ...]
//	WhitelistedURLS: [https://example.com, ...]
//	Karma:
//	  minimum: -10
//	  WordWeight:
//	    thanks: 2
type Moderation struct {
	BlockMessage      string
	BlockMessageColor string
	BlockedWords      []string
	WhitelistedURLs   []string
	Karma             KarmaConfig
}

// KarmaConfig holds the karma threshold and the per-word weights.
type KarmaConfig struct {
	// Minimum is the inclusive floor: karma at or below it blocks chat.
	Minimum     int
	WordWeights map[string]int
}

// DefaultModeration returns the configuration used when no file exists.
func DefaultModeration() *Moderation {
	return &Moderation{
		BlockMessage:      DefaultBlockMessage,
		BlockMessageColor: DefaultBlockMessageColor,
		Karma: KarmaConfig{
			Minimum:     DefaultMinimumKarma,
			WordWeights: map[string]int{},
		},
	}
}

// LoadModeration reads the moderation file at path. It never fails: a missing
// or unreadable file yields the defaults, and a malformed category is logged
// and left at its default.
func LoadModeration(path string, logger *zap.Logger) *Moderation {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("moderation config not found, using defaults", zap.String("path", path))
		} else {
			logger.Error("could not read moderation config, using defaults",
				zap.String("path", path), zap.Error(err))
		}
		return DefaultModeration()
	}
	return ParseModeration(data, logger)
}

// ParseModeration decodes a moderation document. Each top-level key is
// decoded on its own so one bad category does not discard the others.
func ParseModeration(data []byte, logger *zap.Logger) *Moderation {
	cfg := DefaultModeration()

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		logger.Error("moderation config is not valid YAML, using defaults", zap.Error(err))
		return cfg
	}
	if len(doc.Content) == 0 {
		return cfg
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		logger.Error("moderation config root is not a mapping, using defaults")
		return cfg
	}

	eachKey(root, func(key string, val *yaml.Node) {
		switch {
		case strings.EqualFold(key, "BlockMessage"):
			decodeInto(val, &cfg.BlockMessage, key, logger)
		case strings.EqualFold(key, "BlockMessageColor"):
			decodeInto(val, &cfg.BlockMessageColor, key, logger)
		case strings.EqualFold(key, "BlockedWords"):
			decodeInto(val, &cfg.BlockedWords, key, logger)
		case strings.EqualFold(key, "WhitelistedURLS"):
			decodeInto(val, &cfg.WhitelistedURLs, key, logger)
		case strings.EqualFold(key, "Karma"):
			parseKarma(val, &cfg.Karma, logger)
		default:
			logger.Debug("ignoring unknown moderation config key", zap.String("key", key))
		}
	})

	logger.Info("moderation config loaded",
		zap.Int("blocked_words", len(cfg.BlockedWords)),
		zap.Int("whitelisted_urls", len(cfg.WhitelistedURLs)),
		zap.Int("weighted_words", len(cfg.Karma.WordWeights)),
		zap.Int("minimum_karma", cfg.Karma.Minimum))

	return cfg
}

func parseKarma(node *yaml.Node, out *KarmaConfig, logger *zap.Logger) {
	if node.Kind != yaml.MappingNode {
		logger.Warn("could not load Karma section, using defaults")
		return
	}
	eachKey(node, func(key string, val *yaml.Node) {
		switch {
		case strings.EqualFold(key, "minimum"):
			decodeInto(val, &out.Minimum, "Karma."+key, logger)
		case strings.EqualFold(key, "WordWeight"):
			weights := map[string]int{}
			if decodeInto(val, &weights, "Karma."+key, logger) {
				out.WordWeights = weights
			}
		}
	})
}

func eachKey(node *yaml.Node, fn func(key string, val *yaml.Node)) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		fn(node.Content[i].Value, node.Content[i+1])
	}
}

// decodeInto decodes val into a scratch copy of *dst and only assigns on
// success, so a failed decode leaves the default in place.
func decodeInto[T any](val *yaml.Node, dst *T, key string, logger *zap.Logger) bool {
	var tmp T
	if err := val.Decode(&tmp); err != nil {
		logger.Warn("could not load moderation config key, using default",
			zap.String("key", key), zap.Error(err))
		return false
	}
	*dst = tmp
	return true
}
