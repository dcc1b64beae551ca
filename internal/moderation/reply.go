package moderation

import "fmt"

// Prefix starts every administrative reply.
const Prefix = "[<color=#f4a261>ChatManager</color>]:"

// Colours used in administrative replies.
const (
	ColorOK    = "#32CD32"
	ColorCount = "#e63946"
)

// Fixed administrative replies.
const (
	MsgNoTarget       = "You must specify a player."
	MsgTargetNotFound = "Could not find the specified player."
	MsgNoPermission   = "You don't have permission to use this command."
	MsgUnavailable    = "Moderation is unavailable, try again later."
)

// FormatBlockReply is the message shown to a sender whose chat was blocked.
func FormatBlockReply(color, reason string) string {
	return fmt.Sprintf("<color=%s>Your message has been blocked with reason: %s</color>", color, reason)
}

// FormatAdminReply prefixes an administrative reply.
func FormatAdminReply(format string, args ...any) string {
	return Prefix + " " + fmt.Sprintf(format, args...)
}

// FormatBanned confirms a ban; color is the configured block colour.
func FormatBanned(color, name string) string {
	return FormatAdminReply("Player: <color=%s>%s</color> - Has been banned from the chat", color, name)
}

// FormatUnbanned confirms an unban.
func FormatUnbanned(name string) string {
	return FormatAdminReply("Player: <color=%s>%s</color> - Has been unbanned from the chat", ColorOK, name)
}

// FormatAlreadyBanned rejects a ban of a banned player.
func FormatAlreadyBanned(color, name string) string {
	return FormatAdminReply("Player: <color=%s>%s</color> - Is already banned from the chat", color, name)
}

// FormatNotBanned rejects an unban of a player who is not banned.
func FormatNotBanned(name string) string {
	return FormatAdminReply("Player: <color=%s>%s</color> - Is not banned from the chat", ColorOK, name)
}

// FormatKarmaReset confirms a karma reset.
func FormatKarmaReset(name string) string {
	return FormatAdminReply("Player: <color=%s>%s</color> - Karma has been reset", ColorOK, name)
}

// FormatStats renders a stats query as one line per fact.
func FormatStats(color string, violations int, hasViolations, banned bool, karma int) []string {
	lines := make([]string, 0, 3)
	if hasViolations {
		lines = append(lines, FormatAdminReply("Found <color=%s>%d</color> blocked messages for player.", ColorCount, violations))
	} else {
		lines = append(lines, FormatAdminReply("<color=%s>No Records</color> found for player.", ColorOK))
	}
	if banned {
		lines = append(lines, FormatAdminReply("Player is currently <color=%s>banned</color>.", color))
	} else {
		lines = append(lines, FormatAdminReply("Player is currently <color=%s>not banned</color>.", ColorOK))
	}
	lines = append(lines, FormatAdminReply("Player karma is <color=%s>%d</color>.", karmaColor(color, karma), karma))
	return lines
}

// FormatRecentIncidents reports logged denials over the last hours.
func FormatRecentIncidents(count, hours int) string {
	return FormatAdminReply("<color=%s>%d</color> messages denied in the last %d hours.", ColorCount, count, hours)
}

func karmaColor(color string, karma int) string {
	if karma < 0 {
		return color
	}
	return ColorOK
}
