package scripts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/core/logger"
	"github.com/m3rciful/volunteerbot/core/telegram/format"
	"github.com/m3rciful/volunteerbot/volunteer/store"
)

// feedbackScript forwards one message of a member to every admin.
func (b *bot) feedbackScript() *conversation.Script {
	return conversation.NewScript("feedback", conversation.EntryPoint{
		Command:     "feedback",
		Description: "Write to the administrators",
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			v, err := b.current(ctx, &ev.Origin)
			if err != nil {
				return false, err
			}
			if !v.Role.Member() {
				return false, b.denied(ctx, &ev.Origin)
			}
			return true, b.reply(ctx, &ev.Origin, "enter_feedback", nil)
		},
	}).AddStage(b.sendFeedback)
}

func (b *bot) sendFeedback(ctx context.Context, ev *conversation.MessageEvent, _ *conversation.Core) (conversation.Outcome, error) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return conversation.Retry, b.reply(ctx, &ev.Origin, "enter_feedback", nil)
	}
	v, err := b.current(ctx, &ev.Origin)
	if err != nil {
		return conversation.Abort, err
	}
	admins, err := b.Store.Volunteers.Administrators(ctx)
	if err != nil {
		return conversation.Abort, err
	}
	logger.Debug(ctx, logger.ComponentFlow, "feedback.deliver", slog.Int("admins", len(admins)))

	data := map[string]any{"Message": text, "Username": v.Username}
	for i, admin := range admins {
		if i > 0 {
			if err := sleep(ctx, b.Settings.FeedbackDelay); err != nil {
				return conversation.Abort, err
			}
		}
		if err := b.sendTo(ctx, &ev.Origin, admin.TelegramID, "feedback_message", data); err != nil {
			logger.Warn(ctx, logger.ComponentFlow, "feedback.send",
				slog.Int64("admin_id", admin.ID),
				slog.String("err", err.Error()),
			)
		}
	}
	return conversation.Advance, b.reply(ctx, &ev.Origin, "feedback_sent", nil)
}

// broadcastScript lets a curator message every member of their organization.
func (b *bot) broadcastScript() *conversation.Script {
	return conversation.NewScript("broadcast", conversation.EntryPoint{
		Command:     "broadcast",
		Description: "Message every member of your organization",
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			v, err := b.current(ctx, &ev.Origin)
			if err != nil {
				return false, err
			}
			switch {
			case v.Role == store.RoleAdmin:
				return false, b.reply(ctx, &ev.Origin, "role_not_supported", nil)
			case v.Role != store.RoleCurator || v.OrganizationID == nil:
				return false, b.denied(ctx, &ev.Origin)
			}
			return true, b.reply(ctx, &ev.Origin, "enter_broadcast", nil)
		},
	}).AddStage(b.sendBroadcast)
}

func (b *bot) sendBroadcast(ctx context.Context, ev *conversation.MessageEvent, _ *conversation.Core) (conversation.Outcome, error) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return conversation.Retry, b.reply(ctx, &ev.Origin, "enter_broadcast", nil)
	}
	author, err := b.current(ctx, &ev.Origin)
	if err != nil {
		return conversation.Abort, err
	}
	if author.Role != store.RoleCurator {
		return conversation.Abort, b.denied(ctx, &ev.Origin)
	}
	orgID := format.Deref(author.OrganizationID, 0)
	msg, err := b.text("broadcast_message", map[string]any{
		"Message": text,
		"Author":  author.Username,
		"Role":    author.Role,
	})
	if err != nil {
		return conversation.Abort, err
	}

	page := b.Settings.BroadcastPage
	if page <= 0 {
		page = 100
	}
	sent := 0
	for offset := 0; ; offset += page {
		batch, err := b.Store.Volunteers.List(ctx, page, offset)
		if err != nil {
			return conversation.Abort, err
		}
		for _, v := range batch {
			if v.ID == author.ID || !v.Role.Member() || format.Deref(v.OrganizationID, 0) != orgID {
				continue
			}
			if err := ev.SendTo(ctx, v.TelegramID, msg); err != nil {
				logger.Warn(ctx, logger.ComponentFlow, "broadcast.send",
					slog.Int64("volunteer_id", v.ID),
					slog.String("err", err.Error()),
				)
				continue
			}
			sent++
		}
		if len(batch) < page {
			break
		}
	}
	logger.Info(ctx, logger.ComponentFlow, "broadcast.done",
		slog.Int64("organization_id", orgID),
		slog.Int("sent", sent),
	)
	return conversation.Advance, b.reply(ctx, &ev.Origin, "broadcast_done", map[string]any{"Count": sent})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
