package telegram

import (
	"time"

	coreconfig "github.com/m3rciful/volunteerbot/core/config"
	"github.com/m3rciful/volunteerbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares builds the shared middleware chain: recover, rate limit
// when configured, update logging and outbound message counters.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}

	if cfg != nil && cfg.RateLimit.IntervalMS > 0 {
		exclude := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
		for _, kind := range cfg.RateLimit.ExcludeUpdates {
			exclude[kind] = struct{}{}
		}
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
				Exclude:   exclude,
				OnLimited: onLimited,
			}),
		})
	}

	return append(mws,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	)
}
