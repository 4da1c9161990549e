package telegram

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/m3rciful/volunteerbot/core/logger"
	"github.com/m3rciful/volunteerbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry holds the bot commands routed to handlers and shown in the menu.
type Registry struct {
	commands map[string]commands.Command
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]commands.Command)}
}

// RegisterCommand adds a command. Names carry the leading slash.
// Visible commands need a description for the menu.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) bool {
	ctx := context.Background()
	if r == nil || name == "" || cmd.Handler == nil || (!cmd.Hidden && cmd.Description == "") {
		logger.Warn(ctx, logger.ComponentWire, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return false
	}
	if !strings.HasPrefix(name, "/") {
		logger.Warn(ctx, logger.ComponentWire, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "no_slash_prefix"),
		)
		return false
	}
	if _, exists := r.commands[name]; exists {
		logger.Warn(ctx, logger.ComponentWire, "register.command.duplicate", slog.String("name", name))
		return false
	}
	r.commands[name] = cmd
	return true
}

// ListCommands returns the menu entries sorted by name, optionally without hidden ones.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for name, meta := range r.commands {
		if visibleOnly && meta.Hidden {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand finds a command by name with or without the slash.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	cmd, ok := r.commands[name]
	return name, cmd, ok
}

// Commands returns all registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// SetupCommands publishes the visible commands as the bot command menu.
func SetupCommands(bot *tele.Bot, reg *Registry) {
	list := reg.ListCommands(true)
	if len(list) == 0 {
		return
	}
	if err := bot.SetCommands(list); err != nil {
		logger.Error(context.Background(), logger.ComponentWire, "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Info(context.Background(), logger.ComponentWire, "register.commands.set",
		slog.Int("commands", len(list)),
	)
}
