package scripts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/core/logger"
	"github.com/m3rciful/volunteerbot/core/telegram/callbacks"
	"github.com/m3rciful/volunteerbot/core/telegram/keyboard"
	"github.com/m3rciful/volunteerbot/volunteer/store"
)

const (
	actionConfirmReport = "confirm_report"
	actionRejectReport  = "reject_report"
)

// reportSizes are the confirm buttons offered for each reported link.
var reportSizes = []struct {
	size, label string
}{
	{"small", "✅ S"},
	{"medium", "✅ M"},
	{"big", "✅ L"},
}

// reportsScript lists undecided links for admins, each with confirm and reject buttons.
func (b *bot) reportsScript() *conversation.Script {
	return conversation.NewScript("reports", conversation.EntryPoint{
		Command:     "reports",
		Description: "Review reported links",
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			ok, err := b.isAdmin(ctx, &ev.Origin)
			if err != nil || !ok {
				return false, err
			}
			pending, err := b.Store.Reports.Pending(ctx)
			if err != nil {
				return false, err
			}
			if len(pending) == 0 {
				return false, b.reply(ctx, &ev.Origin, "no_reports", nil)
			}
			for _, rep := range pending {
				if err := b.replyKB(ctx, &ev.Origin, "report_preview", rep, reportKeyboard(rep.Hash)); err != nil {
					return false, err
				}
			}
			return false, nil
		},
	})
}

// reportKeyboard puts the confirm buttons on one row and reject below.
func reportKeyboard(hash string) conversation.Keyboard {
	buttons := make([]conversation.Button, 0, len(reportSizes)+1)
	for _, s := range reportSizes {
		buttons = append(buttons, conversation.Button{
			Text: s.label,
			Data: callbacks.Data(actionConfirmReport+"_"+s.size, hash),
		})
	}
	buttons = append(buttons, conversation.Button{Text: "❌", Data: callbacks.Data(actionRejectReport, hash)})
	return keyboard.Chunk(buttons, len(reportSizes))
}

func (b *bot) reward(action string) (int64, error) {
	size, ok := strings.CutPrefix(action, actionConfirmReport+"_")
	if !ok {
		return 0, fmt.Errorf("report action %q", action)
	}
	r := b.Settings.Rewards
	switch size {
	case "small":
		return r.Small, nil
	case "medium":
		return r.Medium, nil
	case "big":
		return r.Big, nil
	}
	return 0, fmt.Errorf("report size %q", size)
}

// onReport decides a reported link. Every volunteer that sent it is told the
// outcome and, on confirmation, credited the reward for the chosen size.
func (b *bot) onReport(ctx context.Context, ev *conversation.CallbackEvent, _ *conversation.Core) error {
	v, err := b.current(ctx, &ev.Origin)
	if err != nil {
		return err
	}
	if v.Role != store.RoleAdmin {
		return nil
	}

	action, hash := conversation.SplitPayload(ev.Payload)
	confirmed := action != actionRejectReport
	var reward int64
	if confirmed {
		if reward, err = b.reward(action); err != nil {
			return err
		}
	}

	reports, err := b.Store.Reports.ByHash(ctx, hash)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return ev.Dismiss(ctx)
	}
	payload := reports[0].Payload

	witnesses, err := b.Store.Reports.Resolve(ctx, hash, confirmed, reward)
	if err != nil {
		return err
	}
	logger.Info(ctx, logger.ComponentFlow, "report.resolved",
		slog.String("hash", hash),
		slog.Bool("confirmed", confirmed),
		slog.Int64("reward", reward),
		slog.Int("witnesses", len(witnesses)),
	)

	view := "report_rejected_notice"
	if confirmed {
		view = "report_confirmed_notice"
	}
	for _, w := range witnesses {
		data := map[string]any{"Payload": payload, "Reward": reward, "Balance": w.Balance}
		if err := b.sendTo(ctx, &ev.Origin, w.TelegramID, view, data); err != nil {
			logger.Warn(ctx, logger.ComponentFlow, "report.notify",
				slog.Int64("volunteer_id", w.ID),
				slog.String("err", err.Error()),
			)
		}
	}

	msg, err := b.text("report_resolved", map[string]any{"Hash": hash, "Confirmed": confirmed})
	if err != nil {
		return err
	}
	return ev.Edit(ctx, msg, nil)
}
