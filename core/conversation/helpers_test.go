package conversation

import (
	"context"
	"sync"
)

type sentMessage struct {
	ChatID int64
	Text   string
	KB     Keyboard
}

type recordingMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	edited  []sentMessage
	deleted []int
}

func (m *recordingMessenger) Send(_ context.Context, chatID int64, text string, kb Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text, KB: kb})
	return nil
}

func (m *recordingMessenger) Edit(_ context.Context, chatID int64, messageID int, text string, kb Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edited = append(m.edited, sentMessage{ChatID: chatID, Text: text, KB: kb})
	return nil
}

func (m *recordingMessenger) Delete(_ context.Context, _ int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *recordingMessenger) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.Text)
	}
	return out
}

func origin(userID int64, out Messenger) Origin {
	return Origin{UserID: userID, ChatID: userID, Username: "tester", Out: out}
}

func command(userID int64, out Messenger, cmd string) *CommandEvent {
	return &CommandEvent{Origin: origin(userID, out), Command: cmd, Raw: "/" + cmd}
}

func message(userID int64, out Messenger, text string) *MessageEvent {
	return &MessageEvent{Origin: origin(userID, out), MessageID: 1, Text: text}
}

func callback(userID int64, out Messenger, payload string) *CallbackEvent {
	return &CallbackEvent{Origin: origin(userID, out), MessageID: 42, Payload: payload}
}

func alwaysEnter(context.Context, *CommandEvent, *Core) (bool, error) { return true, nil }

func advance(context.Context, *MessageEvent, *Core) (Outcome, error) { return Advance, nil }

func stagedScript(name string, stages int) *Script {
	s := NewScript(name, EntryPoint{Command: name, Description: name, Handler: alwaysEnter})
	for i := 0; i < stages; i++ {
		s.AddStage(advance)
	}
	return s
}
