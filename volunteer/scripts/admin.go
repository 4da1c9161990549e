package scripts

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/core/logger"
	"github.com/m3rciful/volunteerbot/core/telegram/format"
	"github.com/m3rciful/volunteerbot/volunteer/store"
)

// adminEntry answers non-admins with no-access and otherwise replies with view and enters the flow.
func (b *bot) adminEntry(view string) conversation.EntryFunc {
	return func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
		ok, err := b.isAdmin(ctx, &ev.Origin)
		if err != nil || !ok {
			return false, err
		}
		return true, b.reply(ctx, &ev.Origin, view, nil)
	}
}

// isAdmin reports whether the sender is an admin, answering with no-access when not.
func (b *bot) isAdmin(ctx context.Context, o *conversation.Origin) (bool, error) {
	v, err := b.current(ctx, o)
	if err != nil {
		return false, err
	}
	if v.Role != store.RoleAdmin {
		return false, b.denied(ctx, o)
	}
	return true, nil
}

func (b *bot) createOrgScript() *conversation.Script {
	return conversation.NewScript("create_org", conversation.EntryPoint{
		Command:     "create_org",
		Description: "Create an organization",
		Handler:     b.adminEntry("enter_org_name"),
	}).AddStage(func(ctx context.Context, ev *conversation.MessageEvent, _ *conversation.Core) (conversation.Outcome, error) {
		ok, err := b.isAdmin(ctx, &ev.Origin)
		if err != nil || !ok {
			return conversation.Abort, err
		}
		name := strings.TrimSpace(ev.Text)
		if name == "" {
			return conversation.Retry, b.reply(ctx, &ev.Origin, "enter_org_name", nil)
		}
		org, err := b.Store.Organizations.Create(ctx, name)
		if errors.Is(err, store.ErrDuplicate) {
			return conversation.Retry, b.reply(ctx, &ev.Origin, "org_exists", nil)
		}
		if err != nil {
			return conversation.Abort, err
		}
		logger.Info(ctx, logger.ComponentFlow, "organization.created",
			slog.Int64("organization_id", org.ID),
			slog.String("name", org.Name),
		)
		return conversation.Advance, b.reply(ctx, &ev.Origin, "org_created", org)
	})
}

// setCuratorScript appoints a curator: the first stage takes a username, the
// second an organization id. The username travels in the session LastMessage.
func (b *bot) setCuratorScript() *conversation.Script {
	return conversation.NewScript("set_curator", conversation.EntryPoint{
		Command:     "set_curator",
		Description: "Appoint a curator",
		Handler:     b.adminEntry("enter_curator_username"),
	}).
		AddStage(b.setCuratorUsername).
		AddStage(b.setCuratorOrganization)
}

func (b *bot) setCuratorUsername(ctx context.Context, ev *conversation.MessageEvent, _ *conversation.Core) (conversation.Outcome, error) {
	username := strings.TrimSpace(ev.Text)
	_, err := b.Store.Volunteers.ByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return conversation.Retry, b.reply(ctx, &ev.Origin, "volunteer_not_found", map[string]any{"Username": username})
	}
	if err != nil {
		return conversation.Abort, err
	}
	orgs, err := b.Store.Organizations.All(ctx)
	if err != nil {
		return conversation.Abort, err
	}
	if len(orgs) == 0 {
		return conversation.Abort, b.reply(ctx, &ev.Origin, "no_organizations", nil)
	}
	return conversation.Advance, b.reply(ctx, &ev.Origin, "select_curator_organization", map[string]any{"Organizations": orgs})
}

func (b *bot) setCuratorOrganization(ctx context.Context, ev *conversation.MessageEvent, c *conversation.Core) (conversation.Outcome, error) {
	orgID, err := strconv.ParseInt(strings.TrimSpace(ev.Text), 10, 64)
	if err != nil {
		return conversation.Retry, b.reply(ctx, &ev.Origin, "invalid_organization", nil)
	}
	org, err := b.Store.Organizations.ByID(ctx, orgID)
	if errors.Is(err, store.ErrNotFound) {
		return conversation.Retry, b.reply(ctx, &ev.Origin, "invalid_organization", nil)
	}
	if err != nil {
		return conversation.Abort, err
	}

	candidate, err := b.Store.Volunteers.ByUsername(ctx, c.Session(ctx, ev.UserID).LastMessage)
	if err != nil {
		return conversation.Abort, err
	}
	if format.Deref(candidate.OrganizationID, 0) != org.ID {
		if err := b.Store.Volunteers.SetOrganization(ctx, candidate.ID, org.ID); err != nil {
			return conversation.Abort, err
		}
	}
	if err := b.Store.Volunteers.SetRole(ctx, candidate.ID, store.RoleCurator); err != nil {
		return conversation.Abort, err
	}
	logger.Info(ctx, logger.ComponentFlow, "curator.seated",
		slog.Int64("volunteer_id", candidate.ID),
		slog.Int64("organization_id", org.ID),
	)

	data := map[string]any{"Username": candidate.Username, "Organization": org.Name}
	if err := b.sendTo(ctx, &ev.Origin, candidate.TelegramID, "curator_notice", data); err != nil {
		logger.Warn(ctx, logger.ComponentFlow, "curator.notify", slog.String("err", err.Error()))
	}
	return conversation.Advance, b.reply(ctx, &ev.Origin, "curator_seated", data)
}
