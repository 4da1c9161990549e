package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/volunteerbot/core/logger"
)

// ErrUnknownCommand is returned when a command reaches the Core without a script bound to it.
var ErrUnknownCommand = errors.New("conversation: unknown command")

// HandleCommand starts the script bound to ev.Command. Any active flow is
// replaced: the session moves to the first stage of the new script, or to
// no flow when the entry declines or the script has no stages.
func (c *Core) HandleCommand(ctx context.Context, ev *CommandEvent) error {
	ctx, unlock := c.lockUser(ctx, ev.UserID)
	defer unlock()

	if err := c.runMiddlewares(ctx, ev); err != nil {
		return err
	}

	if c.cancelCommand != "" && ev.Command == c.cancelCommand {
		if err := c.flush(ctx, ev.UserID); err != nil {
			return err
		}
		logger.Debug(ctx, logger.ComponentFlow, "flow.cancelled", slog.Int64("user_id", ev.UserID))
		if c.onCancel != nil {
			return c.onCancel(ctx, ev, c)
		}
		return nil
	}

	c.mu.RLock()
	script := c.byCommand[ev.Command]
	c.mu.RUnlock()
	if script == nil {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, ev.Command)
	}

	ctx = logger.WithHandler(ctx, script.name)
	cont, err := runEntry(ctx, script.entry.Handler, ev, c)
	if err != nil {
		serr := &StageError{Script: script.name, UserID: ev.UserID, Err: err}
		c.failFlow(ctx, ev, serr)
		return serr
	}

	next := Session{LastMessage: ev.Raw}
	if cont {
		next.Stage = script.FirstStage()
	}
	if _, err := c.store.Set(ctx, ev.UserID, next); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	logger.Debug(ctx, logger.ComponentFlow, "flow.entered",
		slog.String("script", script.name),
		slog.Bool("continue", cont),
		slog.String("stage", displayStage(next.Stage)),
	)
	return nil
}

// HandleMessage routes free text to the stage the user is on, or to the
// no-flow handler when there is none.
func (c *Core) HandleMessage(ctx context.Context, ev *MessageEvent) error {
	ctx, unlock := c.lockUser(ctx, ev.UserID)
	defer unlock()

	if err := c.runMiddlewares(ctx, ev); err != nil {
		return err
	}

	sess := c.store.Get(ctx, ev.UserID)
	var script *Script
	if sess.Active() {
		script = c.ScriptForStage(sess.Stage)
		if script == nil {
			logger.Warn(ctx, logger.ComponentFlow, "session.orphan",
				slog.Int64("user_id", ev.UserID),
				slog.String("stage", sess.Stage),
			)
			if err := c.flush(ctx, ev.UserID); err != nil {
				return err
			}
		}
	}

	if script == nil {
		if c.noFlow == nil {
			return nil
		}
		if err := c.noFlow(ctx, ev, c); err != nil {
			logger.Warn(ctx, logger.ComponentFlow, "noflow.failed", slog.String("err", err.Error()))
			return err
		}
		return nil
	}

	if err := script.Execute(ctx, ev, c); err != nil {
		c.failFlow(ctx, ev, err)
		return err
	}
	return nil
}

// HandleCallback runs the first impact whose pattern matches the payload.
func (c *Core) HandleCallback(ctx context.Context, ev *CallbackEvent) error {
	ctx, unlock := c.lockUser(ctx, ev.UserID)
	defer unlock()

	if err := c.runMiddlewares(ctx, ev); err != nil {
		return err
	}

	var matched *Impact
	for _, im := range c.Impacts() {
		if im.Match(ev.Payload) {
			matched = im
			break
		}
	}

	if matched == nil {
		logger.Warn(ctx, logger.ComponentFlow, "callback.miss",
			slog.String("payload", logger.SanitizeLimit(ev.Payload, 128)),
		)
		if c.callbackMiss != nil {
			return c.callbackMiss(ctx, ev, c)
		}
		return nil
	}

	ctx = logger.WithHandler(ctx, matched.name)
	if err := matched.run(ctx, ev, c); err != nil {
		logger.Error(ctx, logger.ComponentFlow, "callback.failed",
			slog.String("impact", matched.name),
			slog.String("payload", logger.SanitizeLimit(ev.Payload, 128)),
			slog.String("err", err.Error()),
		)
		if ev.MessageID != 0 {
			if derr := ev.Dismiss(ctx); derr != nil && !errors.Is(derr, ErrNoMessenger) {
				logger.Warn(ctx, logger.ComponentFlow, "callback.cleanup_failed", slog.String("err", derr.Error()))
			}
		}
		return err
	}
	return nil
}

// Cancel drops the active flow of a user. Handlers may call it with the
// context they were given for the same user.
func (c *Core) Cancel(ctx context.Context, userID int64) error {
	if holdsUser(ctx, userID) {
		return c.flush(ctx, userID)
	}
	ctx, unlock := c.lockUser(ctx, userID)
	defer unlock()
	return c.flush(ctx, userID)
}

func (c *Core) flush(ctx context.Context, userID int64) error {
	if err := c.store.Flush(ctx, userID); err != nil {
		return fmt.Errorf("flush session: %w", err)
	}
	return nil
}

func (c *Core) runMiddlewares(ctx context.Context, ev Event) error {
	c.mu.RLock()
	chain := append([]Middleware(nil), c.middlewares...)
	c.mu.RUnlock()

	for i, mw := range chain {
		if err := mw(ctx, ev, c); err != nil {
			logger.Warn(ctx, logger.ComponentFlow, "middleware.reject",
				slog.Int("index", i),
				slog.String("kind", ev.Kind()),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("%w: %v", ErrDropped, err)
		}
	}
	return nil
}

// failFlow flushes the session and tells the flow-error handler.
func (c *Core) failFlow(ctx context.Context, ev Event, cause error) {
	attrs := []slog.Attr{slog.String("err", cause.Error())}
	var serr *StageError
	if errors.As(cause, &serr) {
		attrs = append(attrs, slog.String("script", serr.Script), slog.String("stage", displayStage(serr.Stage)))
	}
	logger.Error(ctx, logger.ComponentFlow, "stage.failed", attrs...)

	if err := c.flush(ctx, ev.Source().UserID); err != nil {
		logger.Error(ctx, logger.ComponentFlow, "session.flush_failed", slog.String("err", err.Error()))
	}
	if c.flowError == nil {
		return
	}
	if err := c.flowError(ctx, ev, c, cause); err != nil {
		logger.Warn(ctx, logger.ComponentFlow, "flow_error.reply_failed", slog.String("err", err.Error()))
	}
}

func runEntry(ctx context.Context, fn EntryFunc, ev *CommandEvent, c *Core) (cont bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("entry panic: %v", r)
		}
	}()
	return fn(ctx, ev, c)
}
