package telegram

import (
	"strings"

	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/core/telegram/callbacks"
	"github.com/m3rciful/volunteerbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/volunteerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// MessengerFunc returns the outbound channel for an update.
type MessengerFunc func(c tele.Context) conversation.Messenger

// NewOrigin describes the sender of an update. Callbacks from inline
// messages carry no chat; replies then go to the user directly.
func NewOrigin(c tele.Context, out conversation.Messenger) conversation.Origin {
	o := conversation.Origin{Out: out}
	if u := c.Sender(); u != nil {
		o.UserID = u.ID
		o.Username = u.Username
		o.DisplayName = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	o.ChatID = o.UserID
	if chat := c.Chat(); chat != nil {
		o.ChatID = chat.ID
	}
	return o
}

// NewCommandEvent converts a command update. "/cmd@bot args" yields Command
// "cmd" and Args "args".
func NewCommandEvent(c tele.Context, out conversation.Messenger) *conversation.CommandEvent {
	raw := strings.TrimSpace(c.Text())
	head, args, _ := strings.Cut(raw, " ")
	head, _, _ = strings.Cut(strings.TrimPrefix(head, "/"), "@")
	return &conversation.CommandEvent{
		Origin:  NewOrigin(c, out),
		Command: head,
		Args:    strings.TrimSpace(args),
		Raw:     raw,
	}
}

// NewMessageEvent converts a text update.
func NewMessageEvent(c tele.Context, out conversation.Messenger) *conversation.MessageEvent {
	ev := &conversation.MessageEvent{Origin: NewOrigin(c, out), Text: c.Text()}
	if m := c.Message(); m != nil {
		ev.MessageID = m.ID
	}
	return ev
}

// NewCallbackEvent converts a button press.
func NewCallbackEvent(c tele.Context, out conversation.Messenger) *conversation.CallbackEvent {
	cb := c.Callback()
	ev := &conversation.CallbackEvent{Origin: NewOrigin(c, out), Payload: callbacks.FromUpdate(cb)}
	if cb != nil && cb.Message != nil {
		ev.MessageID = cb.Message.ID
	}
	return ev
}

// RegisterConversation adds every command bound by core to reg. Script
// descriptions and visibility carry over to the command menu.
func RegisterConversation(reg *Registry, core *conversation.Core, out MessengerFunc, cancelDescription string) int {
	entries := make(map[string]conversation.EntryPoint)
	for _, s := range core.Scripts() {
		entries[s.Command()] = s.Entry()
	}

	registered := 0
	core.BindCommands(func(command string, h conversation.CommandHandler) {
		meta := commands.Command{
			Handler: func(c tele.Context) error {
				return h(tghelpers.BuildContext(c), NewCommandEvent(c, out(c)))
			},
		}
		if entry, ok := entries[command]; ok {
			meta.Description = entry.Description
			meta.Hidden = entry.Hidden || entry.Description == ""
		} else {
			meta.Description = cancelDescription
			meta.Hidden = cancelDescription == ""
		}
		if reg.RegisterCommand("/"+command, meta) {
			registered++
		}
	})
	return registered
}
