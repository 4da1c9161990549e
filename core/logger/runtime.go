package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

type ctxKey uint8

const (
	loggerKey ctxKey = iota
	metaKey
)

// Meta identifies the update a log line belongs to.
type Meta struct {
	RID      string
	UpdateID int
	UserID   int64
	ChatID   int64
	Handler  string
}

// Attrs returns the non-zero fields as log attributes.
func (m Meta) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 5)
	if m.RID != "" {
		attrs = append(attrs, slog.String("rid", m.RID))
	}
	if m.UpdateID != 0 {
		attrs = append(attrs, slog.Int("update_id", m.UpdateID))
	}
	if m.UserID != 0 {
		attrs = append(attrs, slog.Int64("user_id", m.UserID))
	}
	if m.ChatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", m.ChatID))
	}
	if m.Handler != "" {
		attrs = append(attrs, slog.String("handler", m.Handler))
	}
	return attrs
}

// MetaFrom returns the metadata stored in ctx, or the zero Meta.
func MetaFrom(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(metaKey).(Meta)
	return m
}

func withMeta(ctx context.Context, edit func(*Meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := MetaFrom(ctx)
	edit(&m)
	return context.WithValue(ctx, metaKey, m)
}

// WithRID sets the correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.RID = rid })
}

// WithUpdateMeta sets the update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *Meta) {
		m.UpdateID, m.UserID, m.ChatID = updateID, userID, chatID
	})
}

// WithHandler names the handler, script or stage serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *Meta) { m.Handler = handler })
}

// WithLogger stores log in ctx so nested calls inherit its attributes.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in ctx, falling back to L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return L
}

// Sanitize drops control and format runes except newline and tab.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and keeps at most max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = Sanitize(s)
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// BuildRID joins the update, chat and user ids as updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	b := make([]byte, 0, 48)
	b = strconv.AppendInt(b, int64(updateID), 10)
	b = append(b, ':')
	b = strconv.AppendInt(b, chatID, 10)
	b = append(b, ':')
	b = strconv.AppendInt(b, userID, 10)
	return string(b)
}

// CompactRID rewrites a BuildRID value with base36 segments joined by dots.
// Anything else is returned as is.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
