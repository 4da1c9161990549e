package scripts

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/core/logger"
	"github.com/m3rciful/volunteerbot/volunteer/store"
)

// Install resolves the dependencies registered on c and adds the
// middlewares, scripts and impacts of the bot. The caller builds the stage
// index afterwards.
func Install(c *conversation.Core) error {
	deps, err := ResolveDeps(c)
	if err != nil {
		return err
	}
	b := &bot{Deps: deps}

	c.AddMiddleware(logUpdates).AddMiddleware(b.ensureVolunteer)

	for _, s := range b.scripts() {
		if err := c.AddScript(s); err != nil {
			return err
		}
	}
	for _, im := range b.impacts() {
		if err := c.AddImpact(im); err != nil {
			return err
		}
	}
	return nil
}

func (b *bot) scripts() []*conversation.Script {
	return []*conversation.Script{
		b.startScript(),
		b.helpScript(),
		b.privacyScript(),
		b.registerScript(),
		b.profileScript(),
		b.teamScript(),
		b.leaderboardScript(),
		b.feedbackScript(),
		b.claimsScript(),
		b.lockdownScript(),
		b.broadcastScript(),
		b.createOrgScript(),
		b.organizationsScript(),
		b.setCuratorScript(),
		b.reportsScript(),
	}
}

func (b *bot) impacts() []*conversation.Impact {
	return []*conversation.Impact{
		conversation.MustImpact("claim", `^(accept|reject)_claim=\d+$`, b.onClaim),
		conversation.MustImpact("report", `^(confirm_report_(small|medium|big)|reject_report)=[0-9a-f]{32}$`, b.onReport),
		conversation.MustImpact("lockdown", `^(enable|disable)_lockdown=\d+$`, b.onLockdown),
	}
}

// Fallbacks returns the Core options answering outside of a script: free
// text with no active flow, failed flows and the cancel command.
func Fallbacks(d *Deps) []conversation.Option {
	b := &bot{Deps: d}
	return []conversation.Option{
		conversation.WithNoFlow(b.onFreeText),
		conversation.WithFlowError(func(ctx context.Context, ev conversation.Event, _ *conversation.Core, _ error) error {
			return b.reply(ctx, ev.Source(), "flow_error", nil)
		}),
		conversation.WithCancelCommand(conversation.DefaultCancelCommand,
			func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) error {
				return b.reply(ctx, &ev.Origin, "cancelled", nil)
			}),
	}
}

func logUpdates(ctx context.Context, ev conversation.Event, c *conversation.Core) error {
	if !logger.ShouldSampleDebug() {
		return nil
	}
	o := ev.Source()
	attrs := []slog.Attr{
		slog.String("kind", ev.Kind()),
		slog.Int64("user_id", o.UserID),
		slog.String("username", o.Username),
		slog.String("stage", c.Session(ctx, o.UserID).Stage),
	}
	switch e := ev.(type) {
	case *conversation.CommandEvent:
		attrs = append(attrs, slog.String("command", e.Command))
	case *conversation.MessageEvent:
		attrs = append(attrs, slog.Int("text_len", len(e.Text)))
	case *conversation.CallbackEvent:
		attrs = append(attrs, slog.String("payload", e.Payload))
	}
	logger.Debug(ctx, logger.ComponentFlow, "update", attrs...)
	return nil
}

// ensureVolunteer records every user on first contact. Predefined admins get the admin role.
func (b *bot) ensureVolunteer(ctx context.Context, ev conversation.Event, _ *conversation.Core) error {
	o := ev.Source()
	role := store.RoleNone
	if b.Settings.isAdmin(o.UserID) {
		role = store.RoleAdmin
	}
	v, created, err := b.Store.Volunteers.Ensure(ctx, store.Volunteer{
		TelegramID:  o.UserID,
		Username:    o.Username,
		DisplayName: o.DisplayName,
		Role:        role,
	})
	if err != nil {
		return err
	}
	if created {
		logger.Info(ctx, logger.ComponentFlow, "volunteer.created",
			slog.Int64("volunteer_id", v.ID),
			slog.Int64("user_id", o.UserID),
			slog.String("role", string(v.Role)),
		)
	}
	return nil
}

// onFreeText treats a link sent by a member as an activity report.
// Anyone else gets the no-script hint.
func (b *bot) onFreeText(ctx context.Context, ev *conversation.MessageEvent, _ *conversation.Core) error {
	v, err := b.current(ctx, &ev.Origin)
	if err != nil {
		return err
	}
	if !v.Role.Member() {
		return b.reply(ctx, &ev.Origin, "no_script", nil)
	}
	link := strings.TrimSpace(ev.Text)
	if !isWebLink(link) {
		return b.reply(ctx, &ev.Origin, "link_required", nil)
	}

	seen, err := b.Store.Reports.Exists(ctx, v.ID, link)
	if err != nil {
		return err
	}
	if seen {
		return b.reply(ctx, &ev.Origin, "link_already_registered", nil)
	}
	rep, err := b.Store.Reports.Create(ctx, v.ID, link)
	if errors.Is(err, store.ErrDuplicate) {
		return b.reply(ctx, &ev.Origin, "link_already_registered", nil)
	}
	if err != nil {
		return err
	}
	logger.Info(ctx, logger.ComponentFlow, "report.created",
		slog.Int64("report_id", rep.ID),
		slog.Int64("volunteer_id", v.ID),
		slog.String("hash", rep.Hash),
	)
	return b.reply(ctx, &ev.Origin, "report_created", nil)
}

func isWebLink(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
