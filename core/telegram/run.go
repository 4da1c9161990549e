package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/volunteerbot/core/config"
	"github.com/m3rciful/volunteerbot/core/logger"
	tghelpers "github.com/m3rciful/volunteerbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/volunteerbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	// Dispatcher is closed by RunTelegram on return. One is created from
	// DispatcherOptions when nil.
	Dispatcher *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot, wires middlewares and routes, and serves
// updates until ctx is done or the poller stops.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config provided")
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	start := time.Now()
	bot, err := newBot(cfg)
	if err != nil {
		return err
	}
	logMode(ctx, bot, logger.Took(start))
	if cfg.Telegram.RunMode == coreconfig.RunModeLongpoll && !opts.DisableWebhookCleanup {
		dropWebhook(ctx, bot)
	}

	disp := opts.Dispatcher
	if disp == nil {
		disp = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	defer disp.Close()
	rt := Runtime{Bot: bot, Dispatcher: disp, Registry: reg}

	wire(ctx, bot, reg, opts.Middlewares, opts.Routes)
	SetupCommands(bot, reg)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}
	runErr := serve(ctx, bot)
	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	return runErr
}

func newBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  newPoller(cfg),
		Client:  BuildHTTPClient(HTTPClientOptions{LongPollTimeout: longPollTimeout(cfg)}),
		OnError: logHandlerError,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

func logHandlerError(err error, c tele.Context) {
	ctx := logger.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Debug(ctx, logger.ComponentTG, "handler.error", slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
}

func logMode(ctx context.Context, bot *tele.Bot, took time.Duration) {
	attrs := []slog.Attr{slog.Duration("duration", took)}
	switch p := bot.Poller.(type) {
	case *tele.Webhook:
		attrs = append(attrs,
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		)
	case *tele.LongPoller:
		attrs = append(attrs,
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Int("timeout_seconds", int(p.Timeout/time.Second)),
		)
	}
	logger.Info(ctx, logger.ComponentTG, "mode", attrs...)
}

// dropWebhook removes a webhook left over from a previous webhook deployment;
// Telegram refuses getUpdates while one is set.
func dropWebhook(ctx context.Context, bot *tele.Bot) {
	err := bot.RemoveWebhook(false)
	if err != nil {
		logger.Warn(ctx, logger.ComponentTG, "delete_webhook", slog.String("err", err.Error()))
		return
	}
	logger.Info(ctx, logger.ComponentTG, "delete_webhook", slog.String("status", "ok"))
}

func wire(ctx context.Context, bot *tele.Bot, reg *Registry, mws []Middleware, routes []Route) {
	var names []string
	for _, mw := range mws {
		if mw.Use != nil {
			bot.Use(mw.Use)
			names = append(names, mw.Name)
		}
	}
	routed := 0
	for _, r := range routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
			routed++
		}
	}
	logger.Info(ctx, logger.ComponentWire, "complete",
		slog.String("middlewares", strings.Join(names, ",")),
		slog.Int("routes", routed),
		slog.Int("commands", len(reg.Commands())),
	)
}

// serve blocks in bot.Start until ctx is cancelled or the poller exits.
// Cancellation is a clean stop.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		bot.Stop()
		<-done
	}
	if err := ctx.Err(); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
