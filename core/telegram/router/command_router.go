package router

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/m3rciful/volunteerbot/core/logger"
	tg "github.com/m3rciful/volunteerbot/core/telegram"
	"github.com/m3rciful/volunteerbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes prepares one route per registered command, each logging a handler summary.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}

	names := make([]string, 0, len(reg.Commands()))
	for name := range reg.Commands() {
		names = append(names, name)
	}
	sort.Strings(names)

	routes := make([]tg.Route, 0, len(names))
	for _, name := range names {
		def := reg.Commands()[name]
		label := "command." + handlerName(name)
		h := func(c tele.Context) error {
			return summarized(c, label, time.Now(), func() error {
				return def.Handler(c)
			})
		}
		routes = append(routes, tg.Route{
			Endpoint: name,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(h)),
		})
	}

	logger.Info(context.Background(), logger.ComponentWire, "commands.routed",
		slog.Int("commands", len(routes)),
	)
	return routes
}
