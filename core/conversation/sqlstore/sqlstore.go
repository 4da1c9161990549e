// Package sqlstore keeps conversation sessions in a SQL table so that flows
// survive restarts. It works with Postgres and SQLite through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/core/logger"
)

// Schema creates the sessions table. Application migrations carry the same definition.
const Schema = `CREATE TABLE IF NOT EXISTS sessions (
	user_id      BIGINT PRIMARY KEY,
	stage        TEXT NOT NULL DEFAULT '',
	last_message TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMP NOT NULL
)`

// Store implements conversation.Store on top of the sessions table.
type Store struct {
	db  *sqlx.DB
	now func() time.Time

	getQ, upsertQ, flushQ string
}

var _ conversation.Store = (*Store)(nil)

// New returns a Store using db. Queries are rebound for the driver.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:   db,
		now:  time.Now,
		getQ: db.Rebind(`SELECT stage, last_message FROM sessions WHERE user_id = ?`),
		upsertQ: db.Rebind(`INSERT INTO sessions (user_id, stage, last_message, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
	stage = excluded.stage,
	last_message = excluded.last_message,
	updated_at = excluded.updated_at`),
		flushQ: db.Rebind(`UPDATE sessions SET stage = '', updated_at = ? WHERE user_id = ?`),
	}
}

// Get returns the stored session. Read errors are logged and yield the zero session.
func (s *Store) Get(ctx context.Context, userID int64) conversation.Session {
	var sess conversation.Session
	err := s.db.GetContext(ctx, &sess, s.getQ, userID)
	switch {
	case err == nil:
		return sess
	case errors.Is(err, sql.ErrNoRows):
		return conversation.Session{}
	default:
		logger.Error(ctx, logger.ComponentDB, "session.get",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return conversation.Session{}
	}
}

// Set replaces the session of userID.
func (s *Store) Set(ctx context.Context, userID int64, next conversation.Session) (conversation.Session, error) {
	prev := s.Get(ctx, userID)
	if _, err := s.db.ExecContext(ctx, s.upsertQ, userID, next.Stage, next.LastMessage, s.now().UTC()); err != nil {
		return prev, err
	}
	conversation.LogTransition(ctx, userID, prev, next)
	return next, nil
}

// Flush clears the stage and keeps the last message. Unknown users are a no-op.
func (s *Store) Flush(ctx context.Context, userID int64) error {
	prev := s.Get(ctx, userID)
	if _, err := s.db.ExecContext(ctx, s.flushQ, s.now().UTC(), userID); err != nil {
		return err
	}
	conversation.LogTransition(ctx, userID, prev, conversation.Session{LastMessage: prev.LastMessage})
	return nil
}
