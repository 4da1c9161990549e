package store

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/volunteerbot/core/cache"
)

const unlockedOrganizationsKey = "organizations:unlocked"

// Organization is a team volunteers can join. Closed organizations accept no claims.
type Organization struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Domain    string    `db:"domain" json:"domain"`
	Closed    bool      `db:"closed" json:"closed"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const organizationColumns = `id, name, domain, closed, created_at`

// Organizations is the organizations repository.
type Organizations struct {
	db    *sqlx.DB
	cache cache.Cache
	now   func() time.Time
}

// Create inserts an organization. Its domain is derived from the name, so
// two organizations with the same name collide with ErrDuplicate.
func (r *Organizations) Create(ctx context.Context, name string) (Organization, error) {
	name = strings.TrimSpace(name)
	var org Organization
	err := r.db.GetContext(ctx, &org, r.db.Rebind(`INSERT INTO organizations (name, domain, closed, created_at)
VALUES (?, ?, ?, ?)
RETURNING `+organizationColumns), name, HashPayload(name), false, r.now().UTC())
	if err != nil {
		return Organization{}, wrap("organizations.create", err)
	}
	cache.Invalidate(ctx, r.cache, unlockedOrganizationsKey)
	return org, nil
}

// ByID returns the organization with the given id.
func (r *Organizations) ByID(ctx context.Context, id int64) (Organization, error) {
	var org Organization
	err := r.db.GetContext(ctx, &org, r.db.Rebind(`SELECT `+organizationColumns+` FROM organizations WHERE id = ?`), id)
	return org, wrap("organizations.by_id", err)
}

// All returns every organization ordered by id.
func (r *Organizations) All(ctx context.Context) ([]Organization, error) {
	var out []Organization
	err := r.db.SelectContext(ctx, &out, `SELECT `+organizationColumns+` FROM organizations ORDER BY id`)
	return out, wrap("organizations.all", err)
}

// Unlocked returns the organizations accepting claims. The list is cached until an organization changes.
func (r *Organizations) Unlocked(ctx context.Context) ([]Organization, error) {
	return cache.Remember(ctx, r.cache, unlockedOrganizationsKey, cache.TTLQuarterHour,
		func(ctx context.Context) ([]Organization, error) {
			var out []Organization
			err := r.db.SelectContext(ctx, &out,
				r.db.Rebind(`SELECT `+organizationColumns+` FROM organizations WHERE closed = ? ORDER BY id`), false)
			return out, wrap("organizations.unlocked", err)
		})
}

// SetClosed locks or unlocks an organization.
func (r *Organizations) SetClosed(ctx context.Context, id int64, closed bool) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE organizations SET closed = ? WHERE id = ?`), closed, id)
	if err != nil {
		return wrap("organizations.set_closed", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrap("organizations.set_closed", ErrNotFound)
	}
	cache.Invalidate(ctx, r.cache, unlockedOrganizationsKey)
	return nil
}
