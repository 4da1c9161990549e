package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/volunteerbot/core/buildinfo"
	coreconfig "github.com/m3rciful/volunteerbot/core/config"
)

// Component names shared by call sites that log through Debug/Info/Warn/Error.
const (
	ComponentApp    = "app"
	ComponentTG     = "tg"
	ComponentWire   = "tg.wire"
	ComponentSender = "tg.sender"
	ComponentFlow   = "flow"
	ComponentDB     = "db"
	ComponentCache  = "cache"
	ComponentRender = "render"
)

var (
	initOnce sync.Once
	stopOnce sync.Once

	logWriter *lineWriter
	logFiles  []io.Closer

	levelVar slog.LevelVar

	debugSampler  = newSampler(1, 50)
	traceOverride bool

	// L is the base logger. It stays nil until InitLogger runs, and every helper tolerates that.
	L *slog.Logger
)

// settings is the resolved logging configuration.
type settings struct {
	format   logFormat
	keyOrder []string
	level    slog.Level
	sampleN  int
	sampleD  int
	profile  string
	file     string
}

func resolveSettings(cfg *coreconfig.Config) settings {
	st := settings{
		format:   formatJSON,
		keyOrder: slices.Clone(defaultKeyOrder),
		level:    slog.LevelInfo,
		sampleN:  1,
		sampleD:  50,
	}
	if cfg == nil {
		return st
	}
	lc := cfg.Logging

	st.profile = strings.ToLower(strings.TrimSpace(lc.Profile))
	if st.profile == "" {
		st.profile = "prod"
	}

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		st.format = formatKV
	case "json":
	default:
		if st.profile == "debug" || st.profile == "dev" {
			st.format = formatKV
		}
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			st.keyOrder = order
		}
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		st.level = slog.LevelDebug
	case "warn", "warning":
		st.level = slog.LevelWarn
	case "error":
		st.level = slog.LevelError
	}

	// An unparsable ratio disables sampling.
	if raw := strings.TrimSpace(lc.DebugSample); raw != "" {
		st.sampleN, st.sampleD = parseRatio(raw)
	}

	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && name != "" {
		st.file = filepath.Join(dir, name)
	}
	return st
}

// InitLogger configures the global structured logger. Calls after the first are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		st := resolveSettings(cfg)
		levelVar.Set(st.level)
		debugSampler.Set(st.sampleN, st.sampleD)
		traceOverride = truthy(os.Getenv("TRACE")) || truthy(os.Getenv("LOG_TRACE"))

		outputs := []io.Writer{os.Stdout}
		if st.file != "" {
			f, err := openLogFile(st.file)
			if err != nil {
				initErr = err
				return
			}
			outputs = append(outputs, f)
			logFiles = append(logFiles, f)
		}
		logWriter = newLineWriter(outputs, 64<<10)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   st.format,
			keyOrder: st.keyOrder,
		}))
		slog.SetDefault(L)

		Info(context.Background(), ComponentApp, "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", st.profile),
		)
	})
	return initErr
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Shutdown flushes buffered log output and closes log files. Only the first call does anything.
func Shutdown() error {
	var err error
	stopOnce.Do(func() {
		if logWriter != nil {
			err = errors.Join(logWriter.Flush(), logWriter.Close())
		}
		for _, c := range logFiles {
			err = errors.Join(err, c.Close())
		}
	})
	return err
}

// Background returns context.Background(). Transport code uses it as the root of per-update contexts.
func Background() context.Context {
	return context.Background()
}

// LogEvent writes one event line. When logg is nil the logger stored in ctx, then L, is used.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to the named component, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs at level under component.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := Component(component)
	if logg == nil {
		if logg = FromContext(ctx); logg != nil && strings.TrimSpace(component) != "" {
			logg = logg.With("component", strings.TrimSpace(component))
		}
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug event should be written.
// TRACE=1 or LOG_TRACE=1 lets every event through.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}
