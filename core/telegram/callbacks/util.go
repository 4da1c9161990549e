package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// FromUpdate returns the payload of a callback as it was put on the button.
// Buttons built by telebot with a unique key arrive split into Unique and
// Data; they are joined back as "<unique>|<data>".
func FromUpdate(cb *tele.Callback) string {
	if cb == nil {
		return ""
	}
	if cb.Unique != "" {
		if cb.Data == "" {
			return cb.Unique
		}
		return cb.Unique + "|" + cb.Data
	}
	return strings.TrimPrefix(cb.Data, "\f")
}

// Key returns the action part of a payload: everything before the first '=' or '|'.
func Key(payload string) string {
	if i := strings.IndexAny(payload, "=|"); i >= 0 {
		return strings.TrimSpace(payload[:i])
	}
	return strings.TrimSpace(payload)
}
