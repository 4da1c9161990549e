package store

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Report is a link a volunteer submitted as proof of activity.
// Confirmed is nil until an admin decides on the link.
type Report struct {
	ID          int64     `db:"id"`
	Payload     string    `db:"payload"`
	Hash        string    `db:"hash"`
	VolunteerID int64     `db:"volunteer_id"`
	Confirmed   *bool     `db:"confirmed"`
	CreatedAt   time.Time `db:"created_at"`
}

// PendingReport is an undecided link and how many volunteers reported it.
type PendingReport struct {
	Hash    string `db:"hash"`
	Payload string `db:"payload"`
	Count   int    `db:"count"`
}

// ReportStats counts the reports of one volunteer by decision.
type ReportStats struct {
	Total     int `db:"total"`
	Confirmed int `db:"confirmed"`
	Rejected  int `db:"rejected"`
}

// Pending is the number of reports not decided yet.
func (s ReportStats) Pending() int {
	return s.Total - s.Confirmed - s.Rejected
}

// Accuracy is the confirmed share in percent, rounded down.
func (s ReportStats) Accuracy() int {
	if s.Total == 0 {
		return 0
	}
	return s.Confirmed * 100 / s.Total
}

const reportColumns = `id, payload, hash, volunteer_id, confirmed, created_at`

const statsColumns = `COUNT(r.id) AS total,
	COALESCE(SUM(CASE WHEN r.confirmed = TRUE THEN 1 ELSE 0 END), 0) AS confirmed,
	COALESCE(SUM(CASE WHEN r.confirmed = FALSE THEN 1 ELSE 0 END), 0) AS rejected`

// Reports is the reports repository.
type Reports struct {
	db  *sqlx.DB
	now func() time.Time
}

// Create stores a report. Sending the same link twice fails with ErrDuplicate.
func (r *Reports) Create(ctx context.Context, volunteerID int64, payload string) (Report, error) {
	payload = strings.TrimSpace(payload)
	var rep Report
	err := r.db.GetContext(ctx, &rep, r.db.Rebind(`INSERT INTO reports (payload, hash, volunteer_id, created_at)
VALUES (?, ?, ?, ?)
RETURNING `+reportColumns), payload, HashPayload(payload), volunteerID, r.now().UTC())
	return rep, wrap("reports.create", err)
}

// Exists reports whether the volunteer already sent payload.
func (r *Reports) Exists(ctx context.Context, volunteerID int64, payload string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM reports WHERE volunteer_id = ? AND hash = ?`),
		volunteerID, HashPayload(strings.TrimSpace(payload)))
	return n > 0, wrap("reports.exists", err)
}

// ByHash returns every report of the link with hash, oldest first.
func (r *Reports) ByHash(ctx context.Context, hash string) ([]Report, error) {
	var out []Report
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`SELECT `+reportColumns+` FROM reports WHERE hash = ? ORDER BY id`), hash)
	return out, wrap("reports.by_hash", err)
}

// Pending lists undecided links grouped by hash, oldest first.
func (r *Reports) Pending(ctx context.Context) ([]PendingReport, error) {
	var out []PendingReport
	err := r.db.SelectContext(ctx, &out, `SELECT hash, MIN(payload) AS payload, COUNT(*) AS count
FROM reports
WHERE confirmed IS NULL
GROUP BY hash
ORDER BY MIN(id)`)
	return out, wrap("reports.pending", err)
}

// Stats counts the reports of a volunteer.
func (r *Reports) Stats(ctx context.Context, volunteerID int64) (ReportStats, error) {
	var s ReportStats
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`SELECT `+statsColumns+` FROM reports r WHERE r.volunteer_id = ?`), volunteerID)
	return s, wrap("reports.stats", err)
}

// Resolve decides every undecided report of hash. On confirmation each
// reporting volunteer is credited reward. The volunteers that reported the
// link are returned; an already decided hash yields none.
func (r *Reports) Resolve(ctx context.Context, hash string, confirmed bool, reward int64) ([]Volunteer, error) {
	var witnesses []Volunteer
	err := inTx(ctx, r.db, "reports.resolve", func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &witnesses, tx.Rebind(`SELECT `+prefixed("v", volunteerColumns)+`
FROM volunteers v
JOIN reports r ON r.volunteer_id = v.id
WHERE r.hash = ? AND r.confirmed IS NULL
ORDER BY v.id`), hash); err != nil {
			return err
		}
		if len(witnesses) == 0 {
			return nil
		}
		if confirmed && reward != 0 {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE volunteers SET balance = balance + ?
WHERE id IN (SELECT volunteer_id FROM reports WHERE hash = ? AND confirmed IS NULL)`), reward, hash); err != nil {
				return err
			}
			for i := range witnesses {
				witnesses[i].Balance += reward
			}
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE reports SET confirmed = ? WHERE hash = ? AND confirmed IS NULL`), confirmed, hash)
		return err
	})
	return witnesses, err
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
