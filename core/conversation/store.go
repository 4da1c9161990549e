package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m3rciful/volunteerbot/core/logger"
)

// Store keeps one Session per user.
//
// Get never fails: a missing record or a backend error yields the zero Session.
// Set overwrites the whole record and returns what was stored.
// Flush clears the stage and keeps LastMessage.
type Store interface {
	Get(ctx context.Context, userID int64) Session
	Set(ctx context.Context, userID int64, s Session) (Session, error)
	Flush(ctx context.Context, userID int64) error
}

// LogTransition records a stage change. Store backends call it from Set and Flush.
func LogTransition(ctx context.Context, userID int64, from, to Session) {
	if from.Stage == to.Stage {
		logger.Debug(ctx, logger.ComponentFlow, "session.set",
			slog.Int64("user_id", userID),
			slog.String("stage", to.Stage),
		)
		return
	}
	logger.Debug(ctx, logger.ComponentFlow, "session.transition",
		slog.Int64("user_id", userID),
		slog.String("from", displayStage(from.Stage)),
		slog.String("to", displayStage(to.Stage)),
	)
}

func displayStage(stage string) string {
	if stage == "" {
		return "none"
	}
	return stage
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewMemoryStore returns a process-local Store.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[int64]Session)}
}

func (m *memoryStore) Get(_ context.Context, userID int64) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[userID]
}

func (m *memoryStore) Set(ctx context.Context, userID int64, s Session) (Session, error) {
	m.mu.Lock()
	prev := m.sessions[userID]
	m.sessions[userID] = s
	m.mu.Unlock()

	LogTransition(ctx, userID, prev, s)
	return s, nil
}

func (m *memoryStore) Flush(ctx context.Context, userID int64) error {
	m.mu.Lock()
	prev := m.sessions[userID]
	next := Session{LastMessage: prev.LastMessage}
	m.sessions[userID] = next
	m.mu.Unlock()

	LogTransition(ctx, userID, prev, next)
	return nil
}
