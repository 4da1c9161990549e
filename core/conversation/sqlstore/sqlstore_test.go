package sqlstore

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/volunteerbot/core/conversation"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(Schema)
	require.NoError(t, err)
	return New(db)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	assert.Equal(t, conversation.Session{}, s.Get(ctx, 1))

	stored, err := s.Set(ctx, 1, conversation.Session{Stage: "register_1", LastMessage: "/register"})
	require.NoError(t, err)
	assert.Equal(t, "register_1", stored.Stage)
	assert.Equal(t, stored, s.Get(ctx, 1))

	_, err = s.Set(ctx, 1, conversation.Session{Stage: "register_2"})
	require.NoError(t, err)
	assert.Equal(t, conversation.Session{Stage: "register_2"}, s.Get(ctx, 1))
}

func TestStoreFlushKeepsLastMessage(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Set(ctx, 5, conversation.Session{Stage: "set_curator_2", LastMessage: "12"})
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx, 5))
	assert.Equal(t, conversation.Session{LastMessage: "12"}, s.Get(ctx, 5))

	require.NoError(t, s.Flush(ctx, 404))
	assert.Equal(t, conversation.Session{}, s.Get(ctx, 404))
}

func TestStoreDrivesCore(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	core := conversation.New(s)

	script := conversation.NewScript("feedback", conversation.EntryPoint{
		Command: "feedback",
		Handler: func(context.Context, *conversation.CommandEvent, *conversation.Core) (bool, error) {
			return true, nil
		},
	}).AddStage(func(context.Context, *conversation.MessageEvent, *conversation.Core) (conversation.Outcome, error) {
		return conversation.Advance, nil
	})
	require.NoError(t, core.AddScript(script))
	core.BuildStageIndex()

	origin := conversation.Origin{UserID: 3, ChatID: 3}
	require.NoError(t, core.HandleCommand(ctx, &conversation.CommandEvent{Origin: origin, Command: "feedback", Raw: "/feedback"}))
	assert.Equal(t, "feedback_1", s.Get(ctx, 3).Stage)

	require.NoError(t, core.HandleMessage(ctx, &conversation.MessageEvent{Origin: origin, Text: "great bot"}))
	assert.False(t, s.Get(ctx, 3).Active())
}
