package store

import (
	"context"
	"sort"
)

// MemberStats is the report tally of one organization member.
type MemberStats struct {
	VolunteerID    int64  `db:"volunteer_id"`
	OrganizationID int64  `db:"organization_id"`
	FullName       string `db:"full_name"`
	Role           Role   `db:"role"`
	ReportStats
}

// OrgMetrics aggregates the reports of an organization's members.
type OrgMetrics struct {
	OrganizationID int64   `json:"organization_id"`
	Name           string  `json:"name"`
	Members        int     `json:"members"`
	Reports        int     `json:"reports"`
	Confirmed      int     `json:"confirmed"`
	Rejected       int     `json:"rejected"`
	Accuracy       float64 `json:"accuracy"`
}

// MemberStats tallies reports per member of orgID, or of every organization when orgID is 0.
// Members are ordered by accuracy, best first.
func (r *Reports) MemberStats(ctx context.Context, orgID int64) ([]MemberStats, error) {
	query := `SELECT v.id AS volunteer_id, v.organization_id, v.full_name, v.role, ` + statsColumns + `
FROM volunteers v
LEFT JOIN reports r ON r.volunteer_id = v.id
WHERE v.organization_id IS NOT NULL AND v.role IN (?, ?)`
	args := []any{RoleVolunteer, RoleCurator}
	if orgID != 0 {
		query += ` AND v.organization_id = ?`
		args = append(args, orgID)
	}
	query += `
GROUP BY v.id, v.organization_id, v.full_name, v.role
ORDER BY v.id`

	var out []MemberStats
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...); err != nil {
		return nil, wrap("reports.member_stats", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Accuracy() > out[j].Accuracy()
	})
	return out, nil
}

// Summarize folds member tallies into organization metrics. Accuracy is the
// mean of the members' accuracies.
func Summarize(org Organization, members []MemberStats) OrgMetrics {
	m := OrgMetrics{OrganizationID: org.ID, Name: org.Name, Members: len(members)}
	if len(members) == 0 {
		return m
	}
	var acc int
	for _, s := range members {
		m.Reports += s.Total
		m.Confirmed += s.Confirmed
		m.Rejected += s.Rejected
		acc += s.Accuracy()
	}
	m.Accuracy = float64(acc) / float64(len(members))
	return m
}

// Leaderboard returns metrics for every organization that has members.
func (s *Store) Leaderboard(ctx context.Context) ([]OrgMetrics, error) {
	orgs, err := s.Organizations.All(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.Reports.MemberStats(ctx, 0)
	if err != nil {
		return nil, err
	}
	byOrg := make(map[int64][]MemberStats)
	for _, st := range stats {
		byOrg[st.OrganizationID] = append(byOrg[st.OrganizationID], st)
	}
	out := make([]OrgMetrics, 0, len(orgs))
	for _, org := range orgs {
		members := byOrg[org.ID]
		if len(members) == 0 {
			continue
		}
		out = append(out, Summarize(org, members))
	}
	return out, nil
}
