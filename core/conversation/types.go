package conversation

import "context"

// Session is the per-user conversation state.
// An empty Stage means no flow is active.
type Session struct {
	Stage       string `db:"stage"`
	LastMessage string `db:"last_message"`
}

// Active reports whether the session points at a stage.
func (s Session) Active() bool {
	return s.Stage != ""
}

// Outcome tells the Core what to do with the session after a stage ran.
type Outcome int

const (
	// Advance moves to the next stage, or ends the flow after the last one.
	Advance Outcome = iota
	// Retry keeps the user on the same stage.
	Retry
	// Abort ends the flow immediately.
	Abort
)

func (o Outcome) String() string {
	switch o {
	case Advance:
		return "advance"
	case Retry:
		return "retry"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Button is a single inline button. Data is delivered back as a callback payload.
type Button struct {
	Text string
	Data string
}

// Keyboard is a grid of inline buttons, one slice per row.
type Keyboard [][]Button

// Row is a convenience constructor for a single keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}

// Messenger is the outbound side of a transport.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, kb Keyboard) error
	Edit(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}
