package scripts

import (
	"context"

	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/volunteer/store"
)

func (b *bot) startScript() *conversation.Script {
	return conversation.NewScript("start", conversation.EntryPoint{
		Command: "start",
		Hidden:  true,
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			return false, b.reply(ctx, &ev.Origin, "welcome", nil)
		},
	})
}

func (b *bot) privacyScript() *conversation.Script {
	return conversation.NewScript("privacy", conversation.EntryPoint{
		Command:     "privacy",
		Description: "How your data is used",
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			return false, b.reply(ctx, &ev.Origin, "privacy", nil)
		},
	})
}

var helpViews = map[store.Role]string{
	store.RoleNone:      "help_guest",
	store.RoleVolunteer: "help_volunteer",
	store.RoleCurator:   "help_curator",
	store.RoleAdmin:     "help_admin",
}

func (b *bot) helpScript() *conversation.Script {
	return conversation.NewScript("help", conversation.EntryPoint{
		Command:     "help",
		Description: "What I can do for you",
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			v, err := b.current(ctx, &ev.Origin)
			if err != nil {
				return false, err
			}
			view, ok := helpViews[v.Role]
			if !ok {
				view = helpViews[store.RoleNone]
			}
			return false, b.reply(ctx, &ev.Origin, view, nil)
		},
	})
}

func (b *bot) organizationsScript() *conversation.Script {
	return conversation.NewScript("organizations", conversation.EntryPoint{
		Command:     "organizations",
		Description: "List organizations",
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			v, err := b.current(ctx, &ev.Origin)
			if err != nil {
				return false, err
			}
			if v.Role != store.RoleAdmin {
				return false, b.denied(ctx, &ev.Origin)
			}
			return false, b.listOrganizations(ctx, &ev.Origin)
		},
	})
}

func (b *bot) listOrganizations(ctx context.Context, o *conversation.Origin) error {
	orgs, err := b.Store.Organizations.All(ctx)
	if err != nil {
		return err
	}
	if len(orgs) == 0 {
		return b.reply(ctx, o, "no_organizations", nil)
	}
	return b.reply(ctx, o, "organizations_list", map[string]any{"Organizations": orgs})
}
