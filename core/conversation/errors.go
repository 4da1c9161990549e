package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrStageNotOwned means a script was asked to run a stage it does not define.
	ErrStageNotOwned = errors.New("conversation: stage not owned by script")
	// ErrDropped means a middleware rejected the event.
	ErrDropped = errors.New("conversation: event dropped by middleware")
	// ErrDuplicateScript is returned when a script name or command is registered twice.
	ErrDuplicateScript = errors.New("conversation: duplicate script")
	// ErrDuplicateImpact is returned when an impact name is registered twice.
	ErrDuplicateImpact = errors.New("conversation: duplicate impact")
	// ErrNoImpact means no impact matched a callback payload.
	ErrNoImpact = errors.New("conversation: no impact matched")
)

// StageError wraps a failure raised inside a stage or entry handler.
type StageError struct {
	Script string
	Stage  string
	UserID int64
	Err    error
}

func (e *StageError) Error() string {
	stage := e.Stage
	if stage == "" {
		stage = "entry"
	}
	return fmt.Sprintf("script %s at %s: %v", e.Script, stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Code classifies the error for handler summaries.
func (e *StageError) Code() string {
	if e.Stage == "" {
		return "ENTRY_FAILED"
	}
	return "STAGE_FAILED"
}
