// Package scripts holds the volunteer bot conversations: command scripts,
// callback impacts, middlewares and fallbacks registered on a conversation Core.
package scripts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/m3rciful/volunteerbot/core/cache"
	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/volunteer/config"
	"github.com/m3rciful/volunteerbot/volunteer/store"
)

// Component names in the Core registry.
const (
	ComponentStore    = "store"
	ComponentRender   = "render"
	ComponentCache    = "cache"
	ComponentSettings = "settings"
)

// Renderer produces message text from a named view.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Settings carries the behaviour knobs of the bot.
type Settings struct {
	Admins        []int64
	Rewards       config.RewardsConfig
	FeedbackDelay time.Duration
	BroadcastPage int
	// Now is the clock used for age checks; time.Now when nil.
	Now func() time.Time
}

// SettingsFrom extracts Settings from the bot configuration.
func SettingsFrom(cfg config.BotConfig) Settings {
	return Settings{
		Admins:        cfg.Admins,
		Rewards:       cfg.Rewards,
		FeedbackDelay: cfg.FeedbackDelay(),
		BroadcastPage: cfg.BroadcastPage,
	}
}

func (s Settings) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Settings) isAdmin(telegramID int64) bool {
	return slices.Contains(s.Admins, telegramID)
}

// Deps are the components every script works with.
type Deps struct {
	Store    *store.Store
	Render   Renderer
	Cache    cache.Cache
	Settings Settings
}

// Provide registers d on c under the component names above.
func Provide(c *conversation.Core, d *Deps) {
	c.RegisterComponent(ComponentStore, d.Store).
		RegisterComponent(ComponentRender, d.Render).
		RegisterComponent(ComponentCache, d.Cache).
		RegisterComponent(ComponentSettings, d.Settings)
}

// ResolveDeps reads the components back with their types. A missing or
// mistyped component is reported here rather than when a user hits it.
func ResolveDeps(c *conversation.Core) (*Deps, error) {
	var errs []error
	st, ok := conversation.ComponentAs[*store.Store](c, ComponentStore)
	if !ok || st == nil {
		errs = append(errs, fmt.Errorf("component %q: want *store.Store, got %T", ComponentStore, c.Component(ComponentStore)))
	}
	r, ok := conversation.ComponentAs[Renderer](c, ComponentRender)
	if !ok {
		errs = append(errs, fmt.Errorf("component %q: want Renderer, got %T", ComponentRender, c.Component(ComponentRender)))
	}
	settings, ok := conversation.ComponentAs[Settings](c, ComponentSettings)
	if !ok {
		errs = append(errs, fmt.Errorf("component %q: want Settings, got %T", ComponentSettings, c.Component(ComponentSettings)))
	}
	// A nil cache disables caching.
	ch, _ := conversation.ComponentAs[cache.Cache](c, ComponentCache)
	if len(errs) > 0 {
		return nil, fmt.Errorf("scripts: %w", errors.Join(errs...))
	}
	return &Deps{Store: st, Render: r, Cache: ch, Settings: settings}, nil
}

// bot binds script handlers to resolved dependencies.
type bot struct {
	*Deps
}

func (b *bot) text(view string, data any) (string, error) {
	return b.Render.Render(view, data)
}

func (b *bot) reply(ctx context.Context, o *conversation.Origin, view string, data any) error {
	return b.replyKB(ctx, o, view, data, nil)
}

func (b *bot) replyKB(ctx context.Context, o *conversation.Origin, view string, data any, kb conversation.Keyboard) error {
	msg, err := b.text(view, data)
	if err != nil {
		return err
	}
	return o.Reply(ctx, msg, kb)
}

// sendTo delivers a rendered view to another user.
func (b *bot) sendTo(ctx context.Context, o *conversation.Origin, chatID int64, view string, data any) error {
	msg, err := b.text(view, data)
	if err != nil {
		return err
	}
	return o.SendTo(ctx, chatID, msg)
}

// current returns the volunteer behind an event.
func (b *bot) current(ctx context.Context, o *conversation.Origin) (store.Volunteer, error) {
	return b.Store.Volunteers.ByTelegramID(ctx, o.UserID)
}

// denied answers with the no-access view.
func (b *bot) denied(ctx context.Context, o *conversation.Origin) error {
	return b.reply(ctx, o, "no_access", nil)
}
