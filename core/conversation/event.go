package conversation

import (
	"context"
	"errors"
)

// ErrNoMessenger is returned by reply helpers when the event carries no outbound channel.
var ErrNoMessenger = errors.New("conversation: event has no messenger")

// Event is one of *CommandEvent, *MessageEvent or *CallbackEvent.
type Event interface {
	Source() *Origin
	Kind() string
	isEvent()
}

// Origin identifies who sent an event and how to answer.
type Origin struct {
	UserID      int64
	ChatID      int64
	Username    string
	DisplayName string
	Out         Messenger
}

// Source returns the origin itself so that every event exposes it uniformly.
func (o *Origin) Source() *Origin { return o }

// Reply sends text to the chat the event came from.
func (o *Origin) Reply(ctx context.Context, text string, kb Keyboard) error {
	if o.Out == nil {
		return ErrNoMessenger
	}
	return o.Out.Send(ctx, o.ChatID, text, kb)
}

// SendTo sends text to another chat through the same messenger.
func (o *Origin) SendTo(ctx context.Context, chatID int64, text string) error {
	if o.Out == nil {
		return ErrNoMessenger
	}
	return o.Out.Send(ctx, chatID, text, nil)
}

// CommandEvent is a slash command. Raw holds the full text including the slash.
type CommandEvent struct {
	Origin
	Command string
	Args    string
	Raw     string
}

// MessageEvent is a plain text message.
type MessageEvent struct {
	Origin
	MessageID int
	Text      string
}

// CallbackEvent is an inline button press.
type CallbackEvent struct {
	Origin
	MessageID int
	Payload   string
}

func (*CommandEvent) Kind() string  { return "command" }
func (*MessageEvent) Kind() string  { return "message" }
func (*CallbackEvent) Kind() string { return "callback" }

func (*CommandEvent) isEvent()  {}
func (*MessageEvent) isEvent()  {}
func (*CallbackEvent) isEvent() {}

// Edit replaces the text of the message that carried the pressed button.
func (e *CallbackEvent) Edit(ctx context.Context, text string, kb Keyboard) error {
	if e.Out == nil {
		return ErrNoMessenger
	}
	return e.Out.Edit(ctx, e.ChatID, e.MessageID, text, kb)
}

// Dismiss deletes the message that carried the pressed button.
func (e *CallbackEvent) Dismiss(ctx context.Context) error {
	if e.Out == nil {
		return ErrNoMessenger
	}
	return e.Out.Delete(ctx, e.ChatID, e.MessageID)
}
