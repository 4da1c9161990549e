package middleware

import (
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	coreconfig "github.com/m3rciful/volunteerbot/core/config"
	"github.com/m3rciful/volunteerbot/core/logger"
	tghelpers "github.com/m3rciful/volunteerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const defaultTrackedUsers = 10_000

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude holds update kinds (see config.Update*) that bypass the limit.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// MaxTracked bounds how many users are remembered at once.
	MaxTracked int
}

// RateLimitMiddleware returns a middleware that enforces a minimum interval
// between updates from the same user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	size := opts.MaxTracked
	if size <= 0 {
		size = defaultTrackedUsers
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}
	lastSeen := expirable.NewLRU[int64, time.Time](size, nil, interval)

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}

			kind := updateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}

			if _, seen := lastSeen.Get(user.ID); seen {
				attrs := []slog.Attr{slog.String("kind", kind)}
				if chat := c.Chat(); chat != nil && chat.ID != user.ID {
					attrs = append(attrs, slog.Int64("chat_id", chat.ID))
				}
				logger.Warn(tghelpers.BuildContext(c), logger.ComponentTG, "tg.rate_limit", attrs...)
				if opts.OnLimited != nil {
					_ = opts.OnLimited(c)
				}
				return nil
			}

			lastSeen.Add(user.ID, time.Now())
			return next(c)
		}
	}
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return coreconfig.UpdateCallback
	case upd.Message != nil:
		return coreconfig.UpdateMessage
	case upd.Query != nil:
		return coreconfig.UpdateInlineQuery
	default:
		return "other"
	}
}
