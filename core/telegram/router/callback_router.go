package router

import (
	"log/slog"
	"time"

	"github.com/m3rciful/volunteerbot/core/conversation"
	tg "github.com/m3rciful/volunteerbot/core/telegram"
	"github.com/m3rciful/volunteerbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/volunteerbot/core/telegram/helpers"
	"github.com/m3rciful/volunteerbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute answers every button press and hands it to the conversation core.
func CallbackRoute(core *conversation.Core, out tg.MessengerFunc) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}

		ev := tg.NewCallbackEvent(c, out(c))
		key := callbacks.Key(ev.Payload)
		name := "callback." + handlerName(key)

		_ = c.Respond()

		return summarized(c, name, start, func() error {
			return core.HandleCallback(tghelpers.BuildContext(c), ev)
		}, slog.String("cb_key", key))
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
