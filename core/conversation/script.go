package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/volunteerbot/core/logger"
)

// EntryFunc runs when the script command is received.
// Returning false keeps the user out of the flow even when the script has stages.
type EntryFunc func(ctx context.Context, ev *CommandEvent, c *Core) (bool, error)

// StageFunc handles one free-text answer inside a flow.
type StageFunc func(ctx context.Context, ev *MessageEvent, c *Core) (Outcome, error)

// EntryPoint binds a command to the function that starts a script.
type EntryPoint struct {
	// Command without the leading slash.
	Command     string
	Description string
	// Hidden commands are routed but not listed in the bot menu.
	Hidden  bool
	Handler EntryFunc
}

// Script is a named flow: an entry command followed by zero or more stages.
type Script struct {
	name   string
	entry  EntryPoint
	stages []StageFunc
}

// NewScript creates a script with no stages.
func NewScript(name string, entry EntryPoint) *Script {
	entry.Command = strings.TrimPrefix(strings.TrimSpace(entry.Command), "/")
	return &Script{name: name, entry: entry}
}

// AddStage appends a stage and returns the script for chaining.
// Stage keys are assigned in registration order starting at <name>_1.
func (s *Script) AddStage(fn StageFunc) *Script {
	s.stages = append(s.stages, fn)
	return s
}

// Name returns the script name.
func (s *Script) Name() string { return s.name }

// Command returns the entry command without the slash.
func (s *Script) Command() string { return s.entry.Command }

// Entry returns the entry point definition.
func (s *Script) Entry() EntryPoint { return s.entry }

// Stages returns the stage keys in order.
func (s *Script) Stages() []string {
	keys := make([]string, len(s.stages))
	for i := range s.stages {
		keys[i] = s.stageKey(i)
	}
	return keys
}

// FirstStage returns the key of the first stage or "" when the script has none.
func (s *Script) FirstStage() string {
	if len(s.stages) == 0 {
		return ""
	}
	return s.stageKey(0)
}

// Owns reports whether stage belongs to this script.
func (s *Script) Owns(stage string) bool {
	_, ok := s.stageIndex(stage)
	return ok
}

func (s *Script) stageKey(i int) string {
	return s.name + "_" + strconv.Itoa(i+1)
}

func (s *Script) stageIndex(stage string) (int, bool) {
	rest, ok := strings.CutPrefix(stage, s.name+"_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > len(s.stages) {
		return 0, false
	}
	// Reject forms such as "_01" that Atoi accepts but stageKey never produces.
	if strconv.Itoa(n) != rest {
		return 0, false
	}
	return n - 1, true
}

// Execute runs the stage the user is currently on and moves the session
// according to the returned Outcome. A handler error or panic is returned
// as a *StageError with the session left untouched; the Core flushes it.
func (s *Script) Execute(ctx context.Context, ev *MessageEvent, c *Core) error {
	store := c.Sessions()
	sess := store.Get(ctx, ev.UserID)
	idx, ok := s.stageIndex(sess.Stage)
	if !ok {
		return fmt.Errorf("%w: script %q, stage %q", ErrStageNotOwned, s.name, sess.Stage)
	}
	stage := s.stageKey(idx)
	ctx = logger.WithHandler(ctx, stage)

	outcome, err := runStage(ctx, s.stages[idx], ev, c)
	if err != nil {
		return &StageError{Script: s.name, Stage: stage, UserID: ev.UserID, Err: err}
	}

	attrs := []slog.Attr{
		slog.String("script", s.name),
		slog.String("stage", stage),
		slog.String("outcome", outcome.String()),
	}
	switch outcome {
	case Retry:
		logger.Debug(ctx, logger.ComponentFlow, "stage.retry", attrs...)
		return nil
	case Abort:
		logger.Debug(ctx, logger.ComponentFlow, "stage.abort", attrs...)
		return store.Flush(ctx, ev.UserID)
	case Advance:
		if idx+1 >= len(s.stages) {
			logger.Debug(ctx, logger.ComponentFlow, "flow.complete", attrs...)
			return store.Flush(ctx, ev.UserID)
		}
		next := s.stageKey(idx + 1)
		logger.Debug(ctx, logger.ComponentFlow, "stage.advance", append(attrs, slog.String("next", next))...)
		_, err := store.Set(ctx, ev.UserID, Session{Stage: next, LastMessage: ev.Text})
		return err
	default:
		return &StageError{Script: s.name, Stage: stage, UserID: ev.UserID, Err: fmt.Errorf("unknown outcome %d", int(outcome))}
	}
}

func runStage(ctx context.Context, fn StageFunc, ev *MessageEvent, c *Core) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panic: %v", r)
		}
	}()
	return fn(ctx, ev, c)
}
