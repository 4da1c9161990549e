// Package app assembles the volunteer bot from its configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/volunteerbot/core/bootstrap"
	"github.com/m3rciful/volunteerbot/core/cache"
	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/core/conversation/sqlstore"
	"github.com/m3rciful/volunteerbot/core/logger"
	coretelegram "github.com/m3rciful/volunteerbot/core/telegram"
	"github.com/m3rciful/volunteerbot/core/telegram/router"
	tgsender "github.com/m3rciful/volunteerbot/core/telegram/sender"
	"github.com/m3rciful/volunteerbot/volunteer/config"
	"github.com/m3rciful/volunteerbot/volunteer/render"
	"github.com/m3rciful/volunteerbot/volunteer/scripts"
	"github.com/m3rciful/volunteerbot/volunteer/store"

	tele "gopkg.in/telebot.v4"
)

const cancelDescription = "Stop the current action"

// App owns the database, the conversation core and the outbound dispatcher.
type App struct {
	cfg   *config.Config
	db    *sqlx.DB
	core  *conversation.Core
	views *render.Renderer
	disp  *tgsender.Dispatcher
}

// Bootstrap initializes logging, connects to the database, applies
// migrations, seeds the predefined admins and builds the App.
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:     cfg.CoreConfig(),
		Database:   cfg.Database,
		Migrations: store.Migrations(cfg.Database.Driver),
		Modules: bootstrap.Modules{
			Seeders: []bootstrap.Seeder{store.AdminSeeder(cfg.Bot.Admins)},
		},
	})
	if err != nil {
		return nil, err
	}
	a, err := New(ctx, cfg, res.DB)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return a, nil
}

// New builds the App over an open and migrated database.
func New(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*App, error) {
	c, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	views, err := render.New(0)
	if err != nil {
		return nil, err
	}

	deps := &scripts.Deps{
		Store:    store.New(db, c),
		Render:   views,
		Cache:    c,
		Settings: scripts.SettingsFrom(cfg.Bot),
	}
	core := conversation.New(sessionStore(cfg.Sessions, db), scripts.Fallbacks(deps)...)
	scripts.Provide(core, deps)
	if err := scripts.Install(core); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	core.BuildStageIndex()

	logger.Info(ctx, logger.ComponentApp, "assembled",
		slog.String("sessions", cfg.Sessions.Backend),
		slog.String("cache", cfg.Cache.Backend),
		slog.String("db_driver", cfg.Database.Driver),
		slog.Int("scripts", len(core.Scripts())),
		slog.Int("impacts", len(core.Impacts())),
	)
	return &App{
		cfg:   cfg,
		db:    db,
		core:  core,
		views: views,
		disp:  tgsender.NewDispatcher(cfg.Sender.Options()),
	}, nil
}

func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	if cfg.Backend == config.CacheMemcached {
		mc, err := cache.NewMemcached(cfg.Prefix, cfg.Timeout(), cfg.Servers...)
		if err != nil {
			return nil, fmt.Errorf("app: memcached: %w", err)
		}
		err = mc.Ping()
		if err == nil {
			return mc, nil
		}
		logger.Warn(ctx, logger.ComponentCache, "memcached.unavailable",
			slog.Any("servers", cfg.Servers),
			slog.String("err", err.Error()),
			slog.String("fallback", config.CacheLRU),
		)
	}
	return cache.NewLRU(cfg.Size)
}

func sessionStore(cfg config.SessionsConfig, db *sqlx.DB) conversation.Store {
	if cfg.Backend == config.SessionsDatabase {
		return sqlstore.New(db)
	}
	return conversation.NewMemoryStore()
}

// Core exposes the conversation core.
func (a *App) Core() *conversation.Core { return a.core }

// TelegramRunOptions wires the conversation core into the Telegram runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	out := a.messenger()
	reg := coretelegram.NewRegistry()
	if n := coretelegram.RegisterConversation(reg, a.core, out, cancelDescription); n == 0 {
		return coretelegram.RunOptions{}, fmt.Errorf("app: no commands registered")
	}

	routes := router.CommandRoutes(reg)
	routes = append(routes, router.TextRoutes(a.core, out, router.TextOptions{
		UnknownDocument: a.replyView("no_script"),
	})...)
	routes = append(routes, router.CallbackRoute(a.core, out))

	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Dispatcher:  a.disp,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), a.replyView("rate_limited")),
		Routes:      routes,
	}, nil
}

func (a *App) messenger() coretelegram.MessengerFunc {
	return func(c tele.Context) conversation.Messenger {
		return tgsender.NewMessenger(c.Bot(), a.disp)
	}
}

// replyView answers an update with a static view. Button presses get it as a toast.
func (a *App) replyView(view string) tele.HandlerFunc {
	return func(c tele.Context) error {
		text, err := a.views.Render(view, nil)
		if err != nil {
			return err
		}
		if c.Callback() != nil {
			return c.Respond(&tele.CallbackResponse{Text: text})
		}
		return c.Send(text)
	}
}

// Close releases the database.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
