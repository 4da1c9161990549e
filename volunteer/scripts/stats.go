package scripts

import (
	"context"
	"sort"

	"github.com/m3rciful/volunteerbot/core/cache"
	"github.com/m3rciful/volunteerbot/core/conversation"
	"github.com/m3rciful/volunteerbot/volunteer/store"
)

const (
	leaderboardKey = "leaderboard"
	teamTopSize    = 5
)

// ranks maps the lower bound of the confirmed percentage to a badge, best first.
var ranks = []struct {
	min   int
	badge string
}{
	{100, "🏅"},
	{80, "🥇"},
	{60, "🥈"},
	{30, "🥉"},
	{0, "💔"},
}

func rankOf(accuracy int) string {
	for _, r := range ranks {
		if accuracy >= r.min {
			return r.badge
		}
	}
	return ranks[len(ranks)-1].badge
}

// memberOrg returns the organization of a member, answering and returning
// ok=false when the sender has none.
func (b *bot) memberOrg(ctx context.Context, o *conversation.Origin, v store.Volunteer) (store.Organization, bool, error) {
	if v.Role == store.RoleAdmin {
		return store.Organization{}, false, b.reply(ctx, o, "role_not_supported", nil)
	}
	if !v.Role.Member() || v.OrganizationID == nil {
		return store.Organization{}, false, b.reply(ctx, o, "no_organization", nil)
	}
	org, err := b.Store.Organizations.ByID(ctx, *v.OrganizationID)
	if err != nil {
		return store.Organization{}, false, err
	}
	return org, true, nil
}

func (b *bot) profileScript() *conversation.Script {
	return conversation.NewScript("profile", conversation.EntryPoint{
		Command:     "profile",
		Description: "Your statistics",
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			v, err := b.current(ctx, &ev.Origin)
			if err != nil {
				return false, err
			}
			org, ok, err := b.memberOrg(ctx, &ev.Origin, v)
			if err != nil || !ok {
				return false, err
			}
			stats, err := b.Store.Reports.Stats(ctx, v.ID)
			if err != nil {
				return false, err
			}
			return false, b.reply(ctx, &ev.Origin, "profile", map[string]any{
				"Rank":         rankOf(stats.Accuracy()),
				"FullName":     v.FullName,
				"Username":     v.Username,
				"Role":         v.Role,
				"Organization": org.Name,
				"JoinedAt":     v.CreatedAt.Format("2006-01-02"),
				"Balance":      v.Balance,
				"Reports":      stats.Total,
				"Confirmed":    stats.Confirmed,
				"Rejected":     stats.Rejected,
				"Accuracy":     stats.Accuracy(),
			})
		},
	})
}

func (b *bot) teamScript() *conversation.Script {
	return conversation.NewScript("team", conversation.EntryPoint{
		Command:     "team",
		Description: "Your organization",
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			v, err := b.current(ctx, &ev.Origin)
			if err != nil {
				return false, err
			}
			org, ok, err := b.memberOrg(ctx, &ev.Origin, v)
			if err != nil || !ok {
				return false, err
			}
			members, err := b.Store.Reports.MemberStats(ctx, org.ID)
			if err != nil {
				return false, err
			}
			m := store.Summarize(org, members)

			type entry struct {
				FullName string
				Accuracy int
			}
			top := make([]entry, 0, teamTopSize)
			for _, s := range members {
				if len(top) == teamTopSize {
					break
				}
				top = append(top, entry{FullName: s.FullName, Accuracy: s.Accuracy()})
			}
			return false, b.reply(ctx, &ev.Origin, "team", map[string]any{
				"Name":      m.Name,
				"Members":   m.Members,
				"Reports":   m.Reports,
				"Confirmed": m.Confirmed,
				"Rejected":  m.Rejected,
				"Top":       top,
			})
		},
	})
}

// leaderboardScript ranks organizations. The metrics are cached for a day.
func (b *bot) leaderboardScript() *conversation.Script {
	return conversation.NewScript("leaderboard", conversation.EntryPoint{
		Command:     "leaderboard",
		Description: "Organizations ranking",
		Handler: func(ctx context.Context, ev *conversation.CommandEvent, _ *conversation.Core) (bool, error) {
			v, err := b.current(ctx, &ev.Origin)
			if err != nil {
				return false, err
			}
			if v.Role == store.RoleNone {
				return false, b.denied(ctx, &ev.Origin)
			}
			metrics, err := cache.Remember(ctx, b.Cache, leaderboardKey, cache.TTLDay, b.Store.Leaderboard)
			if err != nil {
				return false, err
			}
			if len(metrics) == 0 {
				return false, b.reply(ctx, &ev.Origin, "leaderboard_empty", nil)
			}
			return false, b.reply(ctx, &ev.Origin, "leaderboard", map[string]any{
				"ByAccuracy":  sortedMetrics(metrics, func(a, b store.OrgMetrics) bool { return a.Accuracy > b.Accuracy }),
				"ByReports":   sortedMetrics(metrics, func(a, b store.OrgMetrics) bool { return a.Reports > b.Reports }),
				"ByConfirmed": sortedMetrics(metrics, func(a, b store.OrgMetrics) bool { return a.Confirmed > b.Confirmed }),
			})
		},
	})
}

func sortedMetrics(in []store.OrgMetrics, less func(a, b store.OrgMetrics) bool) []store.OrgMetrics {
	out := append([]store.OrgMetrics(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
