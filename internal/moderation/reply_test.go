package moderation

import (
	"strings"
	"testing"
)

func TestFormatBlockReply(t *testing.T) {
	got := FormatBlockReply("#e63946", "Contains URL")
	want := "<color=#e63946>Your message has been blocked with reason: Contains URL</color>"
	if got != want {
		t.Errorf("FormatBlockReply = %q, want %q", got, want)
	}
}

func TestFormatAdminReply(t *testing.T) {
	got := FormatAdminReply("Player %s is already banned", "bob")
	want := Prefix + " Player bob is already banned"
	if got != want {
		t.Errorf("FormatAdminReply = %q, want %q", got, want)
	}
}

func TestFormatBanReplies(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"banned", FormatBanned("#ff0000", "bob"), Prefix + " Player: <color=#ff0000>bob</color> - Has been banned from the chat"},
		{"unbanned", FormatUnbanned("bob"), Prefix + " Player: <color=#32CD32>bob</color> - Has been unbanned from the chat"},
		{"already banned", FormatAlreadyBanned("#ff0000", "bob"), Prefix + " Player: <color=#ff0000>bob</color> - Is already banned from the chat"},
		{"not banned", FormatNotBanned("bob"), Prefix + " Player: <color=#32CD32>bob</color> - Is not banned from the chat"},
		{"karma reset", FormatKarmaReset("bob"), Prefix + " Player: <color=#32CD32>bob</color> - Karma has been reset"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestFormatStats(t *testing.T) {
	t.Run("no records", func(t *testing.T) {
		lines := FormatStats("#e63946", 0, false, false, 0)
		if len(lines) != 3 {
			t.Fatalf("got %d lines, want 3", len(lines))
		}
		if !strings.Contains(lines[0], "No Records") {
			t.Errorf("line 0 = %q", lines[0])
		}
		if !strings.Contains(lines[1], "not banned") {
			t.Errorf("line 1 = %q", lines[1])
		}
		if !strings.Contains(lines[2], "<color=#32CD32>0</color>") {
			t.Errorf("line 2 = %q", lines[2])
		}
	})

	t.Run("banned with violations", func(t *testing.T) {
		lines := FormatStats("#aa0000", 4, true, true, -7)
		want := []string{
			Prefix + " Found <color=#e63946>4</color> blocked messages for player.",
			Prefix + " Player is currently <color=#aa0000>banned</color>.",
			Prefix + " Player karma is <color=#aa0000>-7</color>.",
		}
		for i := range want {
			if lines[i] != want[i] {
				t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
			}
		}
	})
}

func TestFormatRecentIncidents(t *testing.T) {
	want := Prefix + " <color=#e63946>3</color> messages denied in the last 24 hours."
	if got := FormatRecentIncidents(3, 24); got != want {
		t.Errorf("FormatRecentIncidents = %q, want %q", got, want)
	}
}
