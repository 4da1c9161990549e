package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a bot command as shown in the Telegram command menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Hidden commands are routed but left out of the menu.
	Hidden bool
}
