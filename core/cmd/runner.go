package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/volunteerbot/core/config"
	"github.com/m3rciful/volunteerbot/core/logger"
	coretelegram "github.com/m3rciful/volunteerbot/core/telegram"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is the minimal interface required to run a Telegram bot.
// Apps that also implement io.Closer are closed after the bot stops.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(ctx context.Context, cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// Run loads configuration, bootstraps the Telegram app and blocks until the
// bot stops or the process receives SIGINT or SIGTERM.
func Run(opts Options) error {
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return errors.New("cmd: LoadConfig and Bootstrap are required")
	}
	path, err := opts.configPath()
	if err != nil {
		return err
	}

	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return errors.New("cmd: loaded config is missing core configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now()
	app, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer opts.shutdown(app)

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options build failed: %w", err)
	}
	withLifecycleLogs(&runOpts, startedAt)

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

func (o Options) configPath() (string, error) {
	env := o.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if o.DefaultConfigPath != "" {
		return o.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
}

// shutdown closes the app when it is an io.Closer and then flushes the logger.
func (o Options) shutdown(app TelegramApp) {
	if closer, ok := app.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Warn(context.Background(), logger.ComponentApp, "close", slog.String("err", err.Error()))
		}
	}
	flush := o.ShutdownLogger
	if flush == nil {
		flush = logger.Shutdown
	}
	if err := flush(); err != nil {
		log.Printf("logger shutdown error: %v", err)
	}
}

// withLifecycleLogs chains "ready" and "shutdown" events onto the app hooks.
func withLifecycleLogs(opts *coretelegram.RunOptions, startedAt time.Time) {
	onStart, onStop := opts.OnStart, opts.OnStop
	opts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, logger.ComponentApp, "ready", slog.Duration("startup_duration", logger.Took(startedAt)))
		return nil
	}
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, logger.ComponentApp, "shutdown")
		if onStop != nil {
			return onStop(ctx, rt)
		}
		return nil
	}
}
