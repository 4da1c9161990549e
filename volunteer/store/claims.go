package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Claim is a request of a volunteer to join an organization.
type Claim struct {
	ID             int64     `db:"id"`
	VolunteerID    int64     `db:"volunteer_id"`
	OrganizationID int64     `db:"organization_id"`
	CreatedAt      time.Time `db:"created_at"`
}

// ClaimPreview is a pending claim together with what a curator needs to decide on it.
type ClaimPreview struct {
	Claim
	FullName string `db:"full_name"`
	Username string `db:"username"`
	IsAdult  bool   `db:"is_adult"`
}

const claimColumns = `id, volunteer_id, organization_id, created_at`

// Claims is the claims repository.
type Claims struct {
	db  *sqlx.DB
	now func() time.Time
}

// Create files a claim. A volunteer holds at most one claim; a second one fails with ErrDuplicate.
func (r *Claims) Create(ctx context.Context, volunteerID, orgID int64) (Claim, error) {
	var c Claim
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`INSERT INTO claims (volunteer_id, organization_id, created_at)
VALUES (?, ?, ?)
RETURNING `+claimColumns), volunteerID, orgID, r.now().UTC())
	return c, wrap("claims.create", err)
}

// ByID returns a claim.
func (r *Claims) ByID(ctx context.Context, id int64) (Claim, error) {
	var c Claim
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`SELECT `+claimColumns+` FROM claims WHERE id = ?`), id)
	return c, wrap("claims.by_id", err)
}

// ByVolunteer returns the pending claim of a volunteer.
func (r *Claims) ByVolunteer(ctx context.Context, volunteerID int64) (Claim, error) {
	var c Claim
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`SELECT `+claimColumns+` FROM claims WHERE volunteer_id = ?`), volunteerID)
	return c, wrap("claims.by_volunteer", err)
}

// ByOrganization lists the pending claims of an organization, oldest first.
func (r *Claims) ByOrganization(ctx context.Context, orgID int64) ([]ClaimPreview, error) {
	var out []ClaimPreview
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`SELECT
	c.id, c.volunteer_id, c.organization_id, c.created_at,
	v.full_name, v.username, v.is_adult
FROM claims c
JOIN volunteers v ON v.id = c.volunteer_id
WHERE c.organization_id = ?
ORDER BY c.id`), orgID)
	return out, wrap("claims.by_organization", err)
}

// Reject removes a claim and returns it.
func (r *Claims) Reject(ctx context.Context, id int64) (Claim, error) {
	var claim Claim
	err := r.inTx(ctx, "claims.reject", func(tx *sqlx.Tx) error {
		var err error
		claim, err = r.take(ctx, tx, id)
		return err
	})
	return claim, err
}

// Accept moves the claimant into the claimed organization as a volunteer,
// removes the claim and returns the updated volunteer.
func (r *Claims) Accept(ctx context.Context, id int64) (Volunteer, error) {
	var v Volunteer
	err := r.inTx(ctx, "claims.accept", func(tx *sqlx.Tx) error {
		claim, err := r.take(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE volunteers SET organization_id = ?, role = ? WHERE id = ?`),
			claim.OrganizationID, RoleVolunteer, claim.VolunteerID); err != nil {
			return err
		}
		return tx.GetContext(ctx, &v, tx.Rebind(`SELECT `+volunteerColumns+` FROM volunteers WHERE id = ?`), claim.VolunteerID)
	})
	return v, err
}

func (r *Claims) take(ctx context.Context, tx *sqlx.Tx, id int64) (Claim, error) {
	var c Claim
	if err := tx.GetContext(ctx, &c, tx.Rebind(`SELECT `+claimColumns+` FROM claims WHERE id = ?`), id); err != nil {
		return Claim{}, err
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM claims WHERE id = ?`), id)
	return c, err
}

func (r *Claims) inTx(ctx context.Context, op string, fn func(*sqlx.Tx) error) error {
	return inTx(ctx, r.db, op, fn)
}

func inTx(ctx context.Context, db *sqlx.DB, op string, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return wrap(op, err)
	}
	return wrap(op, tx.Commit())
}
