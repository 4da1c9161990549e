package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/core/logger"
	tghelpers "github.com/m3rciful/volunteerbot/core/telegram/helpers"
	"github.com/m3rciful/volunteerbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// summarized runs fn as the named handler and writes one handler.handled line for it.
func summarized(c tele.Context, name string, start time.Time, fn func() error, extras ...slog.Attr) error {
	tghelpers.WithHandler(c, name)
	err := fn()
	status := logger.Status(err)
	logSummary(c, name, start, status, status, err, extras...)
	return err
}

// skipped records a handler that had nothing to do.
func skipped(c tele.Context, name string, start time.Time) {
	logSummary(c, name, start, "skip", "ok", nil)
}

func logSummary(c tele.Context, name string, start time.Time, status, outcome string, err error, extras ...slog.Attr) {
	msgs, kb := middleware.GetCounters(c)
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("handler", name),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	}, extras...)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
			slog.String("cause", name),
		)
	}
	logger.LogEvent(tghelpers.WithHandler(c, name), logger.Component(logger.ComponentTG), slog.LevelInfo, "handler.handled", attrs...)
}

// handlerName lowercases a command or callback key into a log-friendly token.
func handlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// errorCode prefers an explicit Code() from the chain and falls back to the
// concrete error type name.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, conversation.ErrDropped) {
		return "DROPPED"
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return upperToken(code)
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return upperToken(t.Name())
}

func upperToken(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", "_"))
}
