package scripts

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/core/logger"
	"github.com/m3rciful/volunteerbot/core/telegram/helpers"
	"github.com/m3rciful/volunteerbot/volunteer/store"
)

const adultAge = 18

// registerScript asks for full name, birthday and organization and files a claim.
func (b *bot) registerScript() *conversation.Script {
	return conversation.NewScript("register", conversation.EntryPoint{
		Command:     "register",
		Description: "Join an organization",
		Handler:     b.registerEntry,
	}).
		AddStage(b.registerFullName).
		AddStage(b.registerBirthday).
		AddStage(b.registerOrganization)
}

func (b *bot) registerEntry(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
	v, err := b.current(ctx, &ev.Origin)
	if err != nil {
		return false, err
	}
	switch {
	case v.Role == store.RoleAdmin:
		return false, b.reply(ctx, &ev.Origin, "role_not_supported", nil)
	case v.Role.Member():
		return false, b.reply(ctx, &ev.Origin, "already_registered", nil)
	}

	_, err = b.Store.Claims.ByVolunteer(ctx, v.ID)
	switch {
	case err == nil:
		return false, b.reply(ctx, &ev.Origin, "claim_exists", nil)
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}
	return true, b.reply(ctx, &ev.Origin, "enter_full_name", nil)
}

func (b *bot) registerFullName(ctx context.Context, ev *conversation.MessageEvent, _ *conversation.Core) (conversation.Outcome, error) {
	name := strings.Join(strings.Fields(ev.Text), " ")
	if name == "" {
		return conversation.Retry, b.reply(ctx, &ev.Origin, "enter_full_name", nil)
	}
	v, err := b.current(ctx, &ev.Origin)
	if err != nil {
		return conversation.Abort, err
	}
	if err := b.Store.Volunteers.UpdateFullName(ctx, v.ID, name); err != nil {
		return conversation.Abort, err
	}
	return conversation.Advance, b.reply(ctx, &ev.Origin, "enter_birthday", nil)
}

func (b *bot) registerBirthday(ctx context.Context, ev *conversation.MessageEvent, _ *conversation.Core) (conversation.Outcome, error) {
	birthday, ok := helpers.ParseFlexibleDate(ev.Text)
	now := b.Settings.now()
	if !ok || birthday.After(now) {
		return conversation.Retry, b.reply(ctx, &ev.Origin, "invalid_birthday", nil)
	}
	v, err := b.current(ctx, &ev.Origin)
	if err != nil {
		return conversation.Abort, err
	}
	if err := b.Store.Volunteers.SetAdult(ctx, v.ID, helpers.YearsBetween(birthday, now) >= adultAge); err != nil {
		return conversation.Abort, err
	}

	orgs, err := b.Store.Organizations.Unlocked(ctx)
	if err != nil {
		return conversation.Abort, err
	}
	if len(orgs) == 0 {
		return conversation.Abort, b.reply(ctx, &ev.Origin, "no_open_organizations", nil)
	}
	return conversation.Advance, b.reply(ctx, &ev.Origin, "select_organization", map[string]any{"Organizations": orgs})
}

func (b *bot) registerOrganization(ctx context.Context, ev *conversation.MessageEvent, _ *conversation.Core) (conversation.Outcome, error) {
	orgID, err := strconv.ParseInt(strings.TrimSpace(ev.Text), 10, 64)
	if err != nil {
		return conversation.Retry, b.reply(ctx, &ev.Origin, "invalid_organization", nil)
	}
	open, err := b.Store.Organizations.Unlocked(ctx)
	if err != nil {
		return conversation.Abort, err
	}
	if !containsOrganization(open, orgID) {
		return conversation.Retry, b.reply(ctx, &ev.Origin, "invalid_organization", nil)
	}

	v, err := b.current(ctx, &ev.Origin)
	if err != nil {
		return conversation.Abort, err
	}
	claim, err := b.Store.Claims.Create(ctx, v.ID, orgID)
	if errors.Is(err, store.ErrDuplicate) {
		return conversation.Abort, b.reply(ctx, &ev.Origin, "claim_exists", nil)
	}
	if err != nil {
		return conversation.Abort, err
	}
	logger.Info(ctx, logger.ComponentFlow, "claim.created",
		slog.Int64("claim_id", claim.ID),
		slog.Int64("volunteer_id", v.ID),
		slog.Int64("organization_id", orgID),
	)
	return conversation.Advance, b.reply(ctx, &ev.Origin, "claim_created", claim)
}

func containsOrganization(orgs []store.Organization, id int64) bool {
	for _, o := range orgs {
		if o.ID == id {
			return true
		}
	}
	return false
}
