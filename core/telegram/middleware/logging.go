package middleware

import (
	"context"
	"log/slog"

	"github.com/m3rciful/volunteerbot/core/logger"
	"github.com/m3rciful/volunteerbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/volunteerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LoggerMiddleware builds the per-update logging context and, when sampled,
// logs an update.received line. Updates that already carry a context were
// seen by an outer chain and pass through untouched.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := tghelpers.ContextFrom(c); ok {
			return next(c)
		}
		ctx := tghelpers.BuildContext(c)
		if logger.ShouldSampleDebug() {
			logReceived(ctx, c)
		}
		return next(c)
	}
}

// logReceived describes the sender and payload. Ids come from ctx.
func logReceived(ctx context.Context, c tele.Context) {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	upd := c.Update()
	switch {
	case upd.Callback != nil:
		payload := callbacks.FromUpdate(upd.Callback)
		attrs = append(attrs,
			slog.String("cb_key", logger.SanitizeLimit(callbacks.Key(payload), 128)),
			slog.String("payload", logger.SanitizeLimit(payload, 256)),
		)
	case upd.Message != nil && c.Text() != "":
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(c.Text(), 256)))
	}
	logger.LogEvent(ctx, nil, slog.LevelDebug, "update.received", attrs...)
}
