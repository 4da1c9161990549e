package router

import (
	"time"

	"github.com/m3rciful/volunteerbot/core/conversation"
	tg "github.com/m3rciful/volunteerbot/core/telegram"
	tghelpers "github.com/m3rciful/volunteerbot/core/telegram/helpers"
	"github.com/m3rciful/volunteerbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls fallback behaviour for non-text updates.
type TextOptions struct {
	UnknownDocument tele.HandlerFunc
}

// TextRoutes hands free text to the conversation core. Text that looks like
// an unregistered command is treated as plain text as well.
func TextRoutes(core *conversation.Core, out tg.MessengerFunc, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if core == nil {
			skipped(c, "text", start)
			return nil
		}
		return summarized(c, "text", start, func() error {
			return core.HandleMessage(tghelpers.BuildContext(c), tg.NewMessageEvent(c, out(c)))
		})
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()
		if opts.UnknownDocument != nil {
			return summarized(c, "unexpected_document", start, func() error {
				return opts.UnknownDocument(c)
			})
		}
		skipped(c, "unexpected_document", start)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
		{
			Endpoint: tele.OnDocument,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(docHandler)),
		},
	}
}
