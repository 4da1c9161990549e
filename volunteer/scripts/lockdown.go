package scripts

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/core/logger"
	"github.com/m3rciful/volunteerbot/core/telegram/callbacks"
	"github.com/m3rciful/volunteerbot/core/telegram/format"
	"github.com/m3rciful/volunteerbot/volunteer/store"
)

const (
	actionEnableLockdown  = "enable_lockdown"
	actionDisableLockdown = "disable_lockdown"
)

// lockdownScript lets a curator open or close their organization for new
// claims. An admin first picks the organization by id.
func (b *bot) lockdownScript() *conversation.Script {
	return conversation.NewScript("lockdown", conversation.EntryPoint{
		Command:     "lockdown",
		Description: "Open or close an organization",
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			v, err := b.current(ctx, &ev.Origin)
			if err != nil {
				return false, err
			}
			switch {
			case v.Role == store.RoleAdmin:
				return true, b.listOrganizations(ctx, &ev.Origin)
			case v.Role != store.RoleCurator || v.OrganizationID == nil:
				return false, b.denied(ctx, &ev.Origin)
			}
			org, err := b.Store.Organizations.ByID(ctx, *v.OrganizationID)
			if err != nil {
				return false, err
			}
			return false, b.replyKB(ctx, &ev.Origin, "org_info", org, lockdownKeyboard(org))
		},
	}).AddStage(func(ctx context.Context, ev *conversation.MessageEvent, _ *conversation.Core) (conversation.Outcome, error) {
		ok, err := b.isAdmin(ctx, &ev.Origin)
		if err != nil || !ok {
			return conversation.Abort, err
		}
		id, err := strconv.ParseInt(strings.TrimSpace(ev.Text), 10, 64)
		if err != nil {
			return conversation.Retry, b.reply(ctx, &ev.Origin, "invalid_organization", nil)
		}
		org, err := b.Store.Organizations.ByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return conversation.Retry, b.reply(ctx, &ev.Origin, "invalid_organization", nil)
		}
		if err != nil {
			return conversation.Abort, err
		}
		return conversation.Advance, b.replyKB(ctx, &ev.Origin, "org_info", org, lockdownKeyboard(org))
	})
}

// lockdownKeyboard offers the opposite of the current state.
func lockdownKeyboard(org store.Organization) conversation.Keyboard {
	btn := conversation.Button{Text: "🔒", Data: callbacks.Data(actionEnableLockdown, org.ID)}
	if org.Closed {
		btn = conversation.Button{Text: "🔓", Data: callbacks.Data(actionDisableLockdown, org.ID)}
	}
	return conversation.Keyboard{conversation.Row(btn)}
}

// onLockdown handles enable_lockdown=<id> and disable_lockdown=<id>.
func (b *bot) onLockdown(ctx context.Context, ev *conversation.CallbackEvent, _ *conversation.Core) error {
	action, id, err := callbacks.Int64(ev.Payload)
	if err != nil {
		return err
	}
	v, err := b.current(ctx, &ev.Origin)
	if err != nil {
		return err
	}
	ownsOrg := v.Role == store.RoleCurator && format.Deref(v.OrganizationID, 0) == id
	if !ownsOrg && v.Role != store.RoleAdmin {
		return nil
	}

	closed := action == actionEnableLockdown
	if err := b.Store.Organizations.SetClosed(ctx, id, closed); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ev.Dismiss(ctx)
		}
		return err
	}
	org, err := b.Store.Organizations.ByID(ctx, id)
	if err != nil {
		return err
	}
	logger.Info(ctx, logger.ComponentFlow, "organization.lockdown",
		slog.Int64("organization_id", id),
		slog.Bool("closed", closed),
	)
	msg, err := b.text("org_info", org)
	if err != nil {
		return err
	}
	return ev.Edit(ctx, msg, lockdownKeyboard(org))
}
