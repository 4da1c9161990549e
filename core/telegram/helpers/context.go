package helpers

import (
	"context"
	"sync/atomic"

	"github.com/m3rciful/volunteerbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const contextKey = "logger_ctx"

type countersKey struct{}

// Counters tracks outbound messages produced while handling one update.
type Counters struct {
	messages atomic.Int32
	keyboard atomic.Bool
}

// Add records one outbound message.
func (c *Counters) Add(withKeyboard bool) {
	if c == nil {
		return
	}
	c.messages.Add(1)
	if withKeyboard {
		c.keyboard.Store(true)
	}
}

// Snapshot returns the message count and whether any message carried a keyboard.
func (c *Counters) Snapshot() (int, bool) {
	if c == nil {
		return 0, false
	}
	return int(c.messages.Load()), c.keyboard.Load()
}

// WithCounters attaches counters to ctx.
func WithCounters(ctx context.Context, c *Counters) context.Context {
	return context.WithValue(ctx, countersKey{}, c)
}

// CountersFrom returns counters attached to ctx, or nil.
func CountersFrom(ctx context.Context) *Counters {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(countersKey{}).(*Counters)
	return c
}

// StoreContext keeps ctx on the update so later handlers reuse it.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(contextKey, ctx)
	}
}

// ContextFrom returns the context stored by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(contextKey).(context.Context)
	return ctx, ok
}

// ids returns the update id and the sender and chat ids, zero when absent.
func ids(c tele.Context) (updateID int, userID, chatID int64) {
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	return c.Update().ID, userID, chatID
}

// BuildContext returns the logging context of the update, creating and
// storing it on first use. The request id is also kept under "rid".
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	updateID, userID, chatID := ids(c)
	rid := logger.BuildRID(updateID, chatID, userID)
	c.Set("rid", rid)

	ctx := logger.WithRID(logger.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component(logger.ComponentTG))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler names the handler in the stored context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}
