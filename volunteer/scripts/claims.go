package scripts

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/core/logger"
	"github.com/m3rciful/volunteerbot/core/telegram/callbacks"
	"github.com/m3rciful/volunteerbot/core/telegram/format"
	"github.com/m3rciful/volunteerbot/volunteer/store"
)

const (
	actionAcceptClaim = "accept_claim"
	actionRejectClaim = "reject_claim"
)

// claimsScript shows a curator one message per pending claim with accept
// and reject buttons. Admins get the organizations overview.
func (b *bot) claimsScript() *conversation.Script {
	return conversation.NewScript("claims", conversation.EntryPoint{
		Command:     "claims",
		Description: "Pending membership claims",
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			v, err := b.current(ctx, &ev.Origin)
			if err != nil {
				return false, err
			}
			switch {
			case v.Role == store.RoleAdmin:
				return false, b.listOrganizations(ctx, &ev.Origin)
			case v.Role != store.RoleCurator || v.OrganizationID == nil:
				return false, b.denied(ctx, &ev.Origin)
			}

			claims, err := b.Store.Claims.ByOrganization(ctx, *v.OrganizationID)
			if err != nil {
				return false, err
			}
			if len(claims) == 0 {
				return false, b.reply(ctx, &ev.Origin, "no_claims", nil)
			}
			for _, cl := range claims {
				kb := conversation.Keyboard{conversation.Row(
					conversation.Button{Text: "✅", Data: callbacks.Data(actionAcceptClaim, cl.ID)},
					conversation.Button{Text: "❌", Data: callbacks.Data(actionRejectClaim, cl.ID)},
				)}
				if err := b.replyKB(ctx, &ev.Origin, "claim_preview", cl, kb); err != nil {
					return false, err
				}
			}
			return false, nil
		},
	})
}

// onClaim handles accept_claim=<id> and reject_claim=<id>. Only the curator
// of the claimed organization or an admin may decide.
func (b *bot) onClaim(ctx context.Context, ev *conversation.CallbackEvent, _ *conversation.Core) error {
	action, id, err := callbacks.Int64(ev.Payload)
	if err != nil {
		return err
	}
	v, err := b.current(ctx, &ev.Origin)
	if err != nil {
		return err
	}
	claim, err := b.Store.Claims.ByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ev.Dismiss(ctx)
	}
	if err != nil {
		return err
	}
	ownsOrg := v.Role == store.RoleCurator && format.Deref(v.OrganizationID, 0) == claim.OrganizationID
	if !ownsOrg && v.Role != store.RoleAdmin {
		logger.Warn(ctx, logger.ComponentFlow, "claim.denied",
			slog.Int64("claim_id", id),
			slog.Int64("volunteer_id", v.ID),
		)
		return nil
	}

	if action == actionRejectClaim {
		if _, err := b.Store.Claims.Reject(ctx, id); err != nil {
			return err
		}
		return b.editClaim(ctx, ev, id, false)
	}

	member, err := b.Store.Claims.Accept(ctx, id)
	if err != nil {
		return err
	}
	logger.Info(ctx, logger.ComponentFlow, "claim.accepted",
		slog.Int64("claim_id", id),
		slog.Int64("volunteer_id", member.ID),
		slog.Int64("organization_id", claim.OrganizationID),
	)
	if err := b.editClaim(ctx, ev, id, true); err != nil {
		return err
	}
	org, err := b.Store.Organizations.ByID(ctx, claim.OrganizationID)
	if err != nil {
		return err
	}
	return b.sendTo(ctx, &ev.Origin, member.TelegramID, "claim_accepted_notice", map[string]any{"Organization": org.Name})
}

func (b *bot) editClaim(ctx context.Context, ev *conversation.CallbackEvent, id int64, accepted bool) error {
	msg, err := b.text("claim_processed", map[string]any{"ID": id, "Accepted": accepted})
	if err != nil {
		return err
	}
	return ev.Edit(ctx, msg, nil)
}
