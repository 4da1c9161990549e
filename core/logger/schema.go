package logger

import (
	"log/slog"
	"strings"
)

// enum restricts a field to known values. Unknown values are kept as given
// when keep is set and dropped otherwise.
type enum struct {
	values map[string]struct{}
	keep   bool
}

func newEnum(keep bool, values ...string) enum {
	e := enum{values: make(map[string]struct{}, len(values)), keep: keep}
	for _, v := range values {
		e.values[v] = struct{}{}
	}
	return e
}

var enums = map[string]enum{
	"status":  newEnum(true, "ok", "fail", "skip", "retry", "rate_limited", "cancelled"),
	"cache":   newEnum(false, "hit", "miss", "refresh"),
	"outcome": newEnum(false, "ok", "fail", "cancelled", "rate_limited", "advance", "retry", "abort"),
}

// normalize lowercases v and reports whether the field survives.
func (e enum) normalize(v string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(v))
	if _, ok := e.values[lower]; ok {
		return lower, true
	}
	return v, e.keep && v != ""
}

func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	case l < slog.LevelError+4:
		return "ERROR"
	}
	return "FATAL"
}

// defaultKeyOrder puts identity and flow fields first; the rest follow sorted.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type", "handler",
	"script", "stage", "from", "to", "next", "outcome", "impact", "cb_key",
	"duration_ms", "messages", "kb", "count",
	"cache", "key", "template", "payload", "lang",
	"username", "role", "volunteer_id", "org_id", "claim_id", "report_hash",
	"mode", "listen", "public_url", "http_code",
	"driver", "db", "host", "port",
	"err", "err_code", "cause", "retryable", "attempts", "backoff_ms", "rate_limited",
}
