package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/volunteerbot/core/conversation"
	tg "github.com/m3rciful/volunteerbot/core/telegram"
)

type recorder struct {
	mu      sync.Mutex
	sent    []string
	deleted []int
}

func (r *recorder) Send(_ context.Context, chatID int64, text string, _ conversation.Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, fmt.Sprintf("%d:%s", chatID, text))
	return nil
}

func (r *recorder) Edit(context.Context, int64, int, string, conversation.Keyboard) error {
	return nil
}

func (r *recorder) Delete(_ context.Context, _ int64, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, messageID)
	return nil
}

// answeringAPI only implements Respond; the routes never call anything else.
type answeringAPI struct {
	tele.API
	answered int
}

func (a *answeringAPI) Respond(*tele.Callback, ...*tele.CallbackResponse) error {
	a.answered++
	return nil
}

func privateMessage(id int, userID int64, text string) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{
		ID:     id,
		Text:   text,
		Sender: &tele.User{ID: userID, Username: "volunteer", FirstName: "Ann"},
		Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
	}}
}

func newCore(t *testing.T) *conversation.Core {
	t.Helper()
	core := conversation.New(nil, conversation.WithNoFlow(
		func(ctx context.Context, ev *conversation.MessageEvent, _ *conversation.Core) error {
			return ev.Reply(ctx, "no script", nil)
		},
	))
	echo := conversation.NewScript("echo", conversation.EntryPoint{
		Command:     "/echo",
		Description: "Echo one message",
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			return true, ev.Reply(ctx, "say something", nil)
		},
	}).AddStage(func(ctx context.Context, ev *conversation.MessageEvent, _ *conversation.Core) (conversation.Outcome, error) {
		return conversation.Advance, ev.Reply(ctx, "echo: "+ev.Text, nil)
	})
	require.NoError(t, core.AddScript(echo))
	require.NoError(t, core.AddImpact(conversation.MustImpact("claim", `^accept_claim=\d+$`,
		func(ctx context.Context, ev *conversation.CallbackEvent, _ *conversation.Core) error {
			return ev.Reply(ctx, "accepted "+ev.Payload, nil)
		})))
	core.BuildStageIndex()
	return core
}

func TestCommandAndTextRoutes(t *testing.T) {
	core := newCore(t)
	out := &recorder{}
	messenger := func(tele.Context) conversation.Messenger { return out }

	reg := tg.NewRegistry()
	assert.Equal(t, 2, tg.RegisterConversation(reg, core, messenger, "Cancel"))
	routes := CommandRoutes(reg)
	require.Len(t, routes, 2)
	assert.Equal(t, "/cancel", routes[0].Endpoint)
	assert.Equal(t, "/echo", routes[1].Endpoint)

	text := TextRoutes(core, messenger, TextOptions{})
	require.Len(t, text, 2)

	require.NoError(t, routes[1].Handler(tele.NewContext(nil, privateMessage(1, 7, "/echo"))))
	require.NoError(t, text[0].Handler(tele.NewContext(nil, privateMessage(2, 7, "hi"))))
	require.NoError(t, text[0].Handler(tele.NewContext(nil, privateMessage(3, 7, "again"))))

	assert.Equal(t, []string{"7:say something", "7:echo: hi", "7:no script"}, out.sent)
}

func TestCallbackRoute(t *testing.T) {
	core := newCore(t)
	out := &recorder{}
	api := &answeringAPI{}
	route := CallbackRoute(core, func(tele.Context) conversation.Messenger { return out })

	press := func(id int, data string) tele.Context {
		return tele.NewContext(api, tele.Update{ID: id, Callback: &tele.Callback{
			Sender:  &tele.User{ID: 9},
			Message: &tele.Message{ID: 77, Chat: &tele.Chat{ID: 9}},
			Data:    data,
		}})
	}

	require.NoError(t, route.Handler(press(1, "accept_claim=4")))
	require.NoError(t, route.Handler(press(2, "unknown=1")))

	assert.Equal(t, 2, api.answered)
	assert.Equal(t, []string{"9:accepted accept_claim=4"}, out.sent)
	assert.Equal(t, []int{77}, out.deleted)
}

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "", errorCode(nil))
	stage := &conversation.StageError{Script: "register", Stage: "register_1", Err: errors.New("db down")}
	assert.Equal(t, "STAGE_FAILED", errorCode(fmt.Errorf("wrapped: %w", stage)))
	assert.Equal(t, "DROPPED", errorCode(fmt.Errorf("%w: banned", conversation.ErrDropped)))
	assert.Equal(t, "ERRORSTRING", errorCode(errors.New("x")))
}

func TestNormalizeHandlerName(t *testing.T) {
	assert.Equal(t, "unknown", handlerName(" "))
	assert.Equal(t, "set_curator", handlerName("/Set Curator"))
}
