package sender

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/core/logger"
	tghelpers "github.com/m3rciful/volunteerbot/core/telegram/helpers"
	"github.com/m3rciful/volunteerbot/core/telegram/keyboard"
)

// Messenger delivers conversation output through the Bot API. Calls go
// through the dispatcher when one is set and run inline otherwise.
type Messenger struct {
	api  tele.API
	disp *Dispatcher
}

var _ conversation.Messenger = (*Messenger)(nil)

// NewMessenger returns a Messenger writing to api. d may be nil.
func NewMessenger(api tele.API, d *Dispatcher) *Messenger {
	return &Messenger{api: api, disp: d}
}

// Send posts text to chatID with an optional inline keyboard.
func (m *Messenger) Send(ctx context.Context, chatID int64, text string, kb conversation.Keyboard) error {
	markup := keyboard.Inline(kb)
	return m.run(ctx, "send.text", "sendMessage", markup != nil, func() error {
		_, err := m.api.Send(tele.ChatID(chatID), text, &tele.SendOptions{
			ReplyMarkup:           markup,
			DisableWebPagePreview: true,
		})
		return err
	})
}

// Edit replaces the text of a message. A nil keyboard removes the buttons.
func (m *Messenger) Edit(ctx context.Context, chatID int64, messageID int, text string, kb conversation.Keyboard) error {
	markup := keyboard.Inline(kb)
	msg := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	return m.run(ctx, "edit.text", "editMessageText", markup != nil, func() error {
		_, err := m.api.Edit(msg, text, &tele.SendOptions{ReplyMarkup: markup})
		return err
	})
}

// Delete removes a message.
func (m *Messenger) Delete(ctx context.Context, chatID int64, messageID int) error {
	msg := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	return m.run(ctx, "delete", "deleteMessage", false, func() error {
		return m.api.Delete(msg)
	})
}

func (m *Messenger) run(ctx context.Context, action, endpoint string, withKeyboard bool, call func() error) error {
	if m.api == nil {
		return errors.New("telegram sender: no bot api")
	}
	counters := tghelpers.CountersFrom(ctx)
	if m.disp == nil {
		if err := call(); err != nil {
			return err
		}
		counters.Add(withKeyboard)
		return nil
	}

	err := m.disp.Enqueue(ctx, action, endpoint, call)
	switch {
	case err == nil:
		counters.Add(withKeyboard)
		return nil
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrQueueClosed):
		logger.Warn(ctx, logger.ComponentSender, "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		if err := call(); err != nil {
			return err
		}
		counters.Add(withKeyboard)
		return nil
	default:
		return err
	}
}
