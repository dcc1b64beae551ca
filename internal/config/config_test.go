package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestParseModeration_Full(t *testing.T) {
	doc := []byte(`
BlockMessage: "blocked!"
BlockMessageColor: "#ff0000"
BlockedWords:
  - badword
  - Offensive
WhitelistedURLS:
  - https://example.com
Karma:
  minimum: -5
  WordWeight:
    thanks: 2
    noob: -3
`)
	cfg := ParseModeration(doc, zap.NewNop())

	if cfg.BlockMessage != "blocked!" {
		t.Errorf("BlockMessage = %q, want %q", cfg.BlockMessage, "blocked!")
	}
	if cfg.BlockMessageColor != "#ff0000" {
		t.Errorf("BlockMessageColor = %q, want %q", cfg.BlockMessageColor, "#ff0000")
	}
	if len(cfg.BlockedWords) != 2 || cfg.BlockedWords[1] != "Offensive" {
		t.Errorf("BlockedWords = %v", cfg.BlockedWords)
	}
	if len(cfg.WhitelistedURLs) != 1 || cfg.WhitelistedURLs[0] != "https://example.com" {
		t.Errorf("WhitelistedURLs = %v", cfg.WhitelistedURLs)
	}
	if cfg.Karma.Minimum != -5 {
		t.Errorf("Karma.Minimum = %d, want -5", cfg.Karma.Minimum)
	}
	if cfg.Karma.WordWeights["thanks"] != 2 || cfg.Karma.WordWeights["noob"] != -3 {
		t.Errorf("Karma.WordWeights = %v", cfg.Karma.WordWeights)
	}
}

func TestParseModeration_MalformedCategoryFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		check func(*testing.T, *Moderation)
	}{
		{
			name: "blocked words not a list",
			doc:  "BlockedWords: {a: b}\nWhitelistedURLS: [https://ok.example]\n",
			check: func(t *testing.T, cfg *Moderation) {
				if len(cfg.BlockedWords) != 0 {
					t.Errorf("BlockedWords = %v, want empty", cfg.BlockedWords)
				}
				if len(cfg.WhitelistedURLs) != 1 {
					t.Errorf("WhitelistedURLs = %v, want 1 entry", cfg.WhitelistedURLs)
				}
			},
		},
		{
			name: "nested entry in whitelist",
			doc:  "WhitelistedURLS:\n  - https://ok.example\n  - {nested: true}\nBlockedWords: [bad]\n",
			check: func(t *testing.T, cfg *Moderation) {
				if len(cfg.WhitelistedURLs) != 0 {
					t.Errorf("WhitelistedURLs = %v, want empty", cfg.WhitelistedURLs)
				}
				if len(cfg.BlockedWords) != 1 {
					t.Errorf("BlockedWords = %v, want 1 entry", cfg.BlockedWords)
				}
			},
		},
		{
			name: "word weight not numeric",
			doc:  "Karma:\n  minimum: -2\n  WordWeight:\n    thanks: lots\n",
			check: func(t *testing.T, cfg *Moderation) {
				if cfg.Karma.Minimum != -2 {
					t.Errorf("Karma.Minimum = %d, want -2", cfg.Karma.Minimum)
				}
				if len(cfg.Karma.WordWeights) != 0 {
					t.Errorf("WordWeights = %v, want empty", cfg.Karma.WordWeights)
				}
			},
		},
		{
			name: "karma not a mapping",
			doc:  "Karma: 12\n",
			check: func(t *testing.T, cfg *Moderation) {
				if cfg.Karma.Minimum != DefaultMinimumKarma {
					t.Errorf("Karma.Minimum = %d, want default %d", cfg.Karma.Minimum, DefaultMinimumKarma)
				}
			},
		},
		{
			name: "not yaml at all",
			doc:  "BlockedWords: [unterminated\n",
			check: func(t *testing.T, cfg *Moderation) {
				if cfg.BlockMessageColor != DefaultBlockMessageColor {
					t.Errorf("BlockMessageColor = %q, want default", cfg.BlockMessageColor)
				}
			},
		},
		{
			name: "empty document",
			doc:  "",
			check: func(t *testing.T, cfg *Moderation) {
				if cfg.BlockMessage != DefaultBlockMessage {
					t.Errorf("BlockMessage = %q, want default", cfg.BlockMessage)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ParseModeration([]byte(tt.doc), zap.NewNop()))
		})
	}
}

func TestLoadModeration_MissingFile(t *testing.T) {
	cfg := LoadModeration(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())
	if cfg == nil {
		t.Fatal("LoadModeration returned nil")
	}
	if len(cfg.BlockedWords) != 0 || len(cfg.WhitelistedURLs) != 0 {
		t.Errorf("expected empty lists, got %v / %v", cfg.BlockedWords, cfg.WhitelistedURLs)
	}
	if cfg.Karma.Minimum != DefaultMinimumKarma {
		t.Errorf("Karma.Minimum = %d, want %d", cfg.Karma.Minimum, DefaultMinimumKarma)
	}
}

func TestLoadModeration_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moderation.yaml")
	if err := os.WriteFile(path, []byte("BlockedWords: [spam]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := LoadModeration(path, zap.NewNop())
	if len(cfg.BlockedWords) != 1 || cfg.BlockedWords[0] != "spam" {
		t.Errorf("BlockedWords = %v, want [spam]", cfg.BlockedWords)
	}
}

func TestLoadProcess(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("ADMIN_IDENTITIES", " alice, ,bob ")
	t.Setenv("REQUEST_TIMEOUT", "750ms")
	t.Setenv("MAX_CONNECTIONS", "not-a-number")
	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("SERVER_NAME", "gw-7")

	cfg := LoadProcess()

	if cfg.StoreBackend != BackendRedis {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendRedis)
	}
	if len(cfg.AdminIdentities) != 2 || cfg.AdminIdentities[0] != "alice" || cfg.AdminIdentities[1] != "bob" {
		t.Errorf("AdminIdentities = %v, want [alice bob]", cfg.AdminIdentities)
	}
	if cfg.RequestTimeout != 750*time.Millisecond {
		t.Errorf("RequestTimeout = %v, want 750ms", cfg.RequestTimeout)
	}
	if cfg.MaxConnections != 10000 {
		t.Errorf("MaxConnections = %d, want default 10000", cfg.MaxConnections)
	}
	if cfg.ChatRateLimit != 0 || cfg.ChatRateWindow != 10*time.Second {
		t.Errorf("chat rate = %d per %v, want disabled by default with a 10s window", cfg.ChatRateLimit, cfg.ChatRateWindow)
	}
	if cfg.AuthSecret != "s3cret" {
		t.Errorf("AuthSecret = %q", cfg.AuthSecret)
	}
	if cfg.ChatHistory != 5 {
		t.Errorf("ChatHistory = %d, want default 5", cfg.ChatHistory)
	}
	if cfg.ServerName != "gw-7" {
		t.Errorf("ServerName = %q, want gw-7", cfg.ServerName)
	}
}
