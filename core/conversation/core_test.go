package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T, opts ...Option) (*Core, *recordingMessenger) {
	t.Helper()
	c := New(NewMemoryStore(), opts...)
	require.NoError(t, c.AddScript(stagedScript("register", 3)))
	require.NoError(t, c.AddScript(stagedScript("help", 0)))
	require.NoError(t, c.AddScript(stagedScript("feedback", 1)))
	c.BuildStageIndex()
	return c, &recordingMessenger{}
}

func TestRegisterFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	c, out := newTestCore(t)

	require.NoError(t, c.HandleCommand(ctx, command(1, out, "register")))
	assert.Equal(t, "register_1", c.Session(ctx, 1).Stage)

	require.NoError(t, c.HandleMessage(ctx, message(1, out, "Alice")))
	assert.Equal(t, "register_2", c.Session(ctx, 1).Stage)

	require.NoError(t, c.HandleMessage(ctx, message(1, out, "1990-01-01")))
	assert.Equal(t, "register_3", c.Session(ctx, 1).Stage)

	require.NoError(t, c.HandleMessage(ctx, message(1, out, "5")))
	assert.Equal(t, "", c.Session(ctx, 1).Stage)
}

func TestCommandOverridesActiveFlow(t *testing.T) {
	ctx := context.Background()
	c, out := newTestCore(t)

	require.NoError(t, c.HandleCommand(ctx, command(1, out, "register")))
	require.NoError(t, c.HandleMessage(ctx, message(1, out, "Alice")))
	require.Equal(t, "register_2", c.Session(ctx, 1).Stage)

	require.NoError(t, c.HandleCommand(ctx, command(1, out, "help")))
	assert.Equal(t, Session{Stage: "", LastMessage: "/help"}, c.Session(ctx, 1))

	require.NoError(t, c.HandleCommand(ctx, command(1, out, "feedback")))
	assert.Equal(t, Session{Stage: "feedback_1", LastMessage: "/feedback"}, c.Session(ctx, 1))
}

func TestCommandDeclinedByEntry(t *testing.T) {
	ctx := context.Background()
	c := New(nil)
	s := NewScript("claims", EntryPoint{Command: "claims", Handler: func(context.Context, *CommandEvent, *Core) (bool, error) {
		return false, nil
	}}).AddStage(advance)
	require.NoError(t, c.AddScript(s))
	c.BuildStageIndex()

	_, _ = c.Sessions().Set(ctx, 1, Session{Stage: "claims_1"})
	require.NoError(t, c.HandleCommand(ctx, command(1, nil, "claims")))
	assert.Equal(t, "", c.Session(ctx, 1).Stage)
}

func TestStageErrorFlushesAndRunsFlowError(t *testing.T) {
	ctx := context.Background()
	var got error
	c := New(nil, WithFlowError(func(ctx context.Context, ev Event, _ *Core, cause error) error {
		got = cause
		return ev.Source().Reply(ctx, "something went wrong", nil)
	}))
	boom := errors.New("db down")
	s := NewScript("broken", EntryPoint{Command: "broken", Handler: alwaysEnter}).
		AddStage(advance).
		AddStage(func(context.Context, *MessageEvent, *Core) (Outcome, error) { return Advance, boom })
	require.NoError(t, c.AddScript(s))
	c.BuildStageIndex()
	out := &recordingMessenger{}

	require.NoError(t, c.HandleCommand(ctx, command(3, out, "broken")))
	require.NoError(t, c.HandleMessage(ctx, message(3, out, "first")))
	require.Equal(t, "broken_2", c.Session(ctx, 3).Stage)

	err := c.HandleMessage(ctx, message(3, out, "second"))
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, got, boom)
	assert.Equal(t, Session{LastMessage: "first"}, c.Session(ctx, 3))
	assert.Equal(t, []string{"something went wrong"}, out.texts())
}

func TestEntryErrorFlushes(t *testing.T) {
	ctx := context.Background()
	calls := 0
	c := New(nil, WithFlowError(func(context.Context, Event, *Core, error) error {
		calls++
		return nil
	}))
	require.NoError(t, c.AddScript(stagedScript("register", 3)))
	require.NoError(t, c.AddScript(NewScript("bad", EntryPoint{Command: "bad", Handler: func(context.Context, *CommandEvent, *Core) (bool, error) {
		return true, errors.New("lookup failed")
	}}).AddStage(advance)))
	c.BuildStageIndex()

	require.NoError(t, c.HandleCommand(ctx, command(1, nil, "register")))
	err := c.HandleCommand(ctx, command(1, nil, "bad"))
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "ENTRY_FAILED", serr.Code())
	assert.Equal(t, "", c.Session(ctx, 1).Stage)
	assert.Equal(t, 1, calls)
}

func TestRetryKeepsStage(t *testing.T) {
	ctx := context.Background()
	c := New(nil)
	attempts := 0
	s := NewScript("age", EntryPoint{Command: "age", Handler: alwaysEnter}).
		AddStage(func(_ context.Context, ev *MessageEvent, _ *Core) (Outcome, error) {
			attempts++
			if ev.Text != "18" {
				return Retry, nil
			}
			return Advance, nil
		})
	require.NoError(t, c.AddScript(s))
	c.BuildStageIndex()

	require.NoError(t, c.HandleCommand(ctx, command(1, nil, "age")))
	require.NoError(t, c.HandleMessage(ctx, message(1, nil, "abc")))
	assert.Equal(t, "age_1", c.Session(ctx, 1).Stage)
	require.NoError(t, c.HandleMessage(ctx, message(1, nil, "18")))
	assert.Equal(t, "", c.Session(ctx, 1).Stage)
	assert.Equal(t, 2, attempts)
}

func TestNoFlowFallback(t *testing.T) {
	ctx := context.Background()
	var seen []string
	c, out := newTestCore(t, WithNoFlow(func(_ context.Context, ev *MessageEvent, _ *Core) error {
		seen = append(seen, ev.Text)
		return nil
	}))

	require.NoError(t, c.HandleMessage(ctx, message(1, out, "hello")))
	assert.Equal(t, []string{"hello"}, seen)
}

func TestOrphanStageFallsBackToNoFlow(t *testing.T) {
	ctx := context.Background()
	fallback := 0
	c, out := newTestCore(t, WithNoFlow(func(context.Context, *MessageEvent, *Core) error {
		fallback++
		return nil
	}))
	_, err := c.Sessions().Set(ctx, 1, Session{Stage: "ghost_stage", LastMessage: "x"})
	require.NoError(t, err)

	require.NotPanics(t, func() {
		require.NoError(t, c.HandleMessage(ctx, message(1, out, "anything")))
	})
	assert.Equal(t, 1, fallback)
	assert.Equal(t, "", c.Session(ctx, 1).Stage)
}

func TestStageIndexMapsEveryKey(t *testing.T) {
	c, _ := newTestCore(t)
	assert.Equal(t, []string{"feedback_1", "register_1", "register_2", "register_3"}, c.Stages())
	for _, s := range c.Scripts() {
		for _, key := range s.Stages() {
			assert.Same(t, s, c.ScriptForStage(key))
		}
	}
	assert.Nil(t, c.ScriptForStage("help_1"))

	c.BuildStageIndex()
	assert.Len(t, c.Stages(), 4)
}

func TestAddScriptRejectsDuplicates(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.AddScript(stagedScript("register", 1)))
	assert.ErrorIs(t, c.AddScript(stagedScript("register", 2)), ErrDuplicateScript)

	clash := NewScript("other", EntryPoint{Command: "register", Handler: alwaysEnter})
	assert.ErrorIs(t, c.AddScript(clash), ErrDuplicateScript)

	cancel := NewScript("cancel_flow", EntryPoint{Command: "cancel", Handler: alwaysEnter})
	assert.ErrorIs(t, c.AddScript(cancel), ErrDuplicateScript)

	assert.Error(t, c.AddScript(NewScript("", EntryPoint{Command: "x", Handler: alwaysEnter})))
	assert.Error(t, c.AddScript(NewScript("noentry", EntryPoint{})))
}

func TestUnknownCommand(t *testing.T) {
	c := New(nil)
	err := c.HandleCommand(context.Background(), command(1, nil, "nope"))
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestCancelCommand(t *testing.T) {
	ctx := context.Background()
	replied := false
	c := New(nil, WithCancelCommand("/stop", func(ctx context.Context, ev *CommandEvent, _ *Core) error {
		replied = true
		return ev.Reply(ctx, "cancelled", nil)
	}))
	require.NoError(t, c.AddScript(stagedScript("register", 3)))
	c.BuildStageIndex()
	out := &recordingMessenger{}

	require.NoError(t, c.HandleCommand(ctx, command(1, out, "register")))
	require.NoError(t, c.HandleCommand(ctx, command(1, out, "stop")))
	assert.Equal(t, "", c.Session(ctx, 1).Stage)
	assert.True(t, replied)
	assert.Equal(t, "stop", c.CancelCommand())

	require.NoError(t, c.HandleCommand(ctx, command(1, out, "register")))
	require.NoError(t, c.Cancel(ctx, 1))
	assert.Equal(t, Session{LastMessage: "/register"}, c.Session(ctx, 1))
}

func TestCancelFromImpact(t *testing.T) {
	ctx := context.Background()
	c := New(nil)
	require.NoError(t, c.AddScript(stagedScript("register", 3)))
	require.NoError(t, c.AddImpact(MustImpact("stop", `^stop$`, func(ctx context.Context, ev *CallbackEvent, c *Core) error {
		return c.Cancel(ctx, ev.UserID)
	})))
	c.BuildStageIndex()
	require.NoError(t, c.HandleCommand(ctx, command(1, nil, "register")))

	done := make(chan error, 1)
	go func() { done <- c.HandleCallback(ctx, callback(1, nil, "stop")) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("HandleCallback did not return")
	}
	assert.Equal(t, "", c.Session(ctx, 1).Stage)
	assert.Equal(t, 0, c.locks.size())
}

func TestCancelOtherUserFromStage(t *testing.T) {
	ctx := context.Background()
	c := New(nil)
	s := NewScript("kick", EntryPoint{Command: "kick", Handler: alwaysEnter}).
		AddStage(func(ctx context.Context, _ *MessageEvent, c *Core) (Outcome, error) {
			return Advance, c.Cancel(ctx, 2)
		})
	require.NoError(t, c.AddScript(s))
	require.NoError(t, c.AddScript(stagedScript("register", 3)))
	c.BuildStageIndex()
	require.NoError(t, c.HandleCommand(ctx, command(2, nil, "register")))
	require.NoError(t, c.HandleCommand(ctx, command(1, nil, "kick")))

	require.NoError(t, c.HandleMessage(ctx, message(1, nil, "go")))
	assert.Equal(t, "", c.Session(ctx, 2).Stage)
	assert.Equal(t, "", c.Session(ctx, 1).Stage)
}

func TestBindCommands(t *testing.T) {
	c, _ := newTestCore(t)
	var bound []string
	c.BindCommands(func(cmd string, h CommandHandler) {
		require.NotNil(t, h)
		bound = append(bound, cmd)
	})
	assert.Equal(t, []string{"register", "help", "feedback", "cancel"}, bound)
}

func TestMiddlewareOrderAndRejection(t *testing.T) {
	ctx := context.Background()
	c, out := newTestCore(t)
	var order []string
	c.AddMiddleware(func(_ context.Context, ev Event, _ *Core) error {
		order = append(order, "first:"+ev.Kind())
		return nil
	})
	c.AddMiddleware(func(_ context.Context, ev Event, _ *Core) error {
		order = append(order, "second:"+ev.Kind())
		if ev.Source().UserID == 666 {
			return errors.New("banned")
		}
		return nil
	})
	third := 0
	c.AddMiddleware(func(context.Context, Event, *Core) error {
		third++
		return nil
	})

	require.NoError(t, c.HandleCommand(ctx, command(1, out, "register")))
	assert.Equal(t, []string{"first:command", "second:command"}, order)
	assert.Equal(t, 1, third)

	err := c.HandleCommand(ctx, command(666, out, "register"))
	assert.ErrorIs(t, err, ErrDropped)
	assert.Equal(t, 1, third)
	assert.Equal(t, "", c.Session(ctx, 666).Stage)
}

func TestMiddlewareSeesTypedEvents(t *testing.T) {
	ctx := context.Background()
	c, out := newTestCore(t)
	var kinds []string
	c.AddMiddleware(func(_ context.Context, ev Event, _ *Core) error {
		switch e := ev.(type) {
		case *CommandEvent:
			kinds = append(kinds, "cmd:"+e.Command)
		case *MessageEvent:
			kinds = append(kinds, "msg:"+e.Text)
		case *CallbackEvent:
			kinds = append(kinds, "cb:"+e.Payload)
		}
		return nil
	})

	_ = c.HandleCommand(ctx, command(1, out, "help"))
	_ = c.HandleMessage(ctx, message(1, out, "hi"))
	_ = c.HandleCallback(ctx, callback(1, out, "x=1"))
	assert.Equal(t, []string{"cmd:help", "msg:hi", "cb:x=1"}, kinds)
}

func TestImpactFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	c := New(nil)
	var first, second int
	require.NoError(t, c.AddImpact(MustImpact("report", `confirm_report=.+`, func(context.Context, *CallbackEvent, *Core) error {
		first++
		return nil
	})))
	require.NoError(t, c.AddImpact(MustImpact("any", `.*`, func(context.Context, *CallbackEvent, *Core) error {
		second++
		return nil
	})))

	require.NoError(t, c.HandleCallback(ctx, callback(1, nil, "confirm_report=abc123")))
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)

	require.NoError(t, c.HandleCallback(ctx, callback(1, nil, "confirm_report=abc123")))
	assert.Equal(t, 2, first, "matching must not depend on previous calls")
}

func TestImpactMissDismissesMessage(t *testing.T) {
	ctx := context.Background()
	c := New(nil)
	out := &recordingMessenger{}
	require.NoError(t, c.HandleCallback(ctx, callback(1, out, "unknown=1")))
	assert.Equal(t, []int{42}, out.deleted)

	missed := false
	c = New(nil, WithCallbackMiss(func(context.Context, *CallbackEvent, *Core) error {
		missed = true
		return nil
	}))
	require.NoError(t, c.HandleCallback(ctx, callback(1, out, "unknown=1")))
	assert.True(t, missed)
}

func TestImpactErrorCleansUp(t *testing.T) {
	ctx := context.Background()
	c := New(nil)
	calls := 0
	require.NoError(t, c.AddImpact(MustImpact("claim", `^(accept|reject)_claim=\d+$`, func(context.Context, *CallbackEvent, *Core) error {
		calls++
		return errors.New("claim gone")
	})))
	out := &recordingMessenger{}

	err := c.HandleCallback(ctx, callback(1, out, "accept_claim=9"))
	assert.EqualError(t, err, "claim gone")
	assert.Equal(t, 1, calls)
	assert.Equal(t, []int{42}, out.deleted)
}

func TestImpactPanicIsContained(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.AddImpact(MustImpact("bad", `.`, func(context.Context, *CallbackEvent, *Core) error {
		panic("oops")
	})))
	assert.NotPanics(t, func() {
		err := c.HandleCallback(context.Background(), callback(1, &recordingMessenger{}, "x"))
		assert.Error(t, err)
	})
}

func TestAddImpactRejectsDuplicateName(t *testing.T) {
	c := New(nil)
	noop := func(context.Context, *CallbackEvent, *Core) error { return nil }
	require.NoError(t, c.AddImpact(MustImpact("a", "a", noop)))
	assert.ErrorIs(t, c.AddImpact(MustImpact("a", "b", noop)), ErrDuplicateImpact)
	assert.Len(t, c.Impacts(), 1)
}

type greeter struct{ greeting string }

func TestComponentRegistry(t *testing.T) {
	c := New(nil)
	c.RegisterComponent("greeter", &greeter{greeting: "hi"})

	assert.Nil(t, c.Component("missing"))
	assert.NotNil(t, c.Component("greeter"))

	g, ok := ComponentAs[*greeter](c, "greeter")
	require.True(t, ok)
	assert.Equal(t, "hi", g.greeting)

	_, ok = ComponentAs[string](c, "greeter")
	assert.False(t, ok)
	_, ok = ComponentAs[*greeter](c, "missing")
	assert.False(t, ok)
}

func TestSameUserEventsAreSerialized(t *testing.T) {
	ctx := context.Background()
	c := New(nil)
	var inFlight, maxInFlight atomic.Int32
	s := NewScript("slow", EntryPoint{Command: "slow", Handler: alwaysEnter})
	for i := 0; i < 20; i++ {
		s.AddStage(func(context.Context, *MessageEvent, *Core) (Outcome, error) {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			return Advance, nil
		})
	}
	require.NoError(t, c.AddScript(s))
	c.BuildStageIndex()
	require.NoError(t, c.HandleCommand(ctx, command(1, nil, "slow")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.HandleMessage(ctx, message(1, nil, "next"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, "", c.Session(ctx, 1).Stage, "every message advanced exactly one stage")
	assert.Equal(t, 0, c.locks.size())
}
