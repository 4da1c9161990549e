package store

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Role is the access level of a volunteer. The zero value is an unregistered user.
type Role string

const (
	RoleNone      Role = ""
	RoleVolunteer Role = "volunteer"
	RoleCurator   Role = "curator"
	RoleAdmin     Role = "admin"
)

// Member reports whether the role belongs to an organization member.
func (r Role) Member() bool {
	return r == RoleVolunteer || r == RoleCurator
}

// Volunteer is a Telegram user known to the bot.
type Volunteer struct {
	ID             int64     `db:"id"`
	TelegramID     int64     `db:"telegram_id"`
	Username       string    `db:"username"`
	DisplayName    string    `db:"display_name"`
	FullName       string    `db:"full_name"`
	Role           Role      `db:"role"`
	IsAdult        bool      `db:"is_adult"`
	OrganizationID *int64    `db:"organization_id"`
	Balance        int64     `db:"balance"`
	CreatedAt      time.Time `db:"created_at"`
}

const volunteerColumns = `id, telegram_id, username, display_name, full_name, role, is_adult, organization_id, balance, created_at`

// Volunteers is the volunteers repository.
type Volunteers struct {
	db  *sqlx.DB
	now func() time.Time
}

// Ensure creates v unless a volunteer with the same Telegram id exists and
// returns the stored record. created is true when the row was inserted.
func (r *Volunteers) Ensure(ctx context.Context, v Volunteer) (stored Volunteer, created bool, err error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO volunteers
	(telegram_id, username, display_name, full_name, role, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (telegram_id) DO NOTHING`),
		v.TelegramID, normalizeUsername(v.Username), v.DisplayName, v.FullName, v.Role, r.now().UTC())
	if err != nil {
		return Volunteer{}, false, wrap("volunteers.ensure", err)
	}
	n, _ := res.RowsAffected()
	stored, err = r.ByTelegramID(ctx, v.TelegramID)
	return stored, n > 0, err
}

// ByTelegramID returns the volunteer with the given Telegram user id.
func (r *Volunteers) ByTelegramID(ctx context.Context, telegramID int64) (Volunteer, error) {
	var v Volunteer
	err := r.db.GetContext(ctx, &v, r.db.Rebind(`SELECT `+volunteerColumns+` FROM volunteers WHERE telegram_id = ?`), telegramID)
	return v, wrap("volunteers.by_telegram_id", err)
}

// ByID returns the volunteer with the given id.
func (r *Volunteers) ByID(ctx context.Context, id int64) (Volunteer, error) {
	var v Volunteer
	err := r.db.GetContext(ctx, &v, r.db.Rebind(`SELECT `+volunteerColumns+` FROM volunteers WHERE id = ?`), id)
	return v, wrap("volunteers.by_id", err)
}

// ByUsername looks a volunteer up by Telegram username, ignoring case and a leading @.
func (r *Volunteers) ByUsername(ctx context.Context, username string) (Volunteer, error) {
	var v Volunteer
	err := r.db.GetContext(ctx, &v,
		r.db.Rebind(`SELECT `+volunteerColumns+` FROM volunteers WHERE lower(username) = ? ORDER BY id LIMIT 1`),
		strings.ToLower(normalizeUsername(username)))
	return v, wrap("volunteers.by_username", err)
}

// UpdateFullName stores the full name given during registration.
func (r *Volunteers) UpdateFullName(ctx context.Context, id int64, fullName string) error {
	return r.exec(ctx, "volunteers.update_full_name", `UPDATE volunteers SET full_name = ? WHERE id = ?`, fullName, id)
}

// SetAdult stores whether the volunteer is of age.
func (r *Volunteers) SetAdult(ctx context.Context, id int64, adult bool) error {
	return r.exec(ctx, "volunteers.set_adult", `UPDATE volunteers SET is_adult = ? WHERE id = ?`, adult, id)
}

// SetRole changes the role of a volunteer.
func (r *Volunteers) SetRole(ctx context.Context, id int64, role Role) error {
	return r.exec(ctx, "volunteers.set_role", `UPDATE volunteers SET role = ? WHERE id = ?`, role, id)
}

// SetOrganization moves the volunteer into orgID.
func (r *Volunteers) SetOrganization(ctx context.Context, id, orgID int64) error {
	return r.exec(ctx, "volunteers.set_organization", `UPDATE volunteers SET organization_id = ? WHERE id = ?`, orgID, id)
}

// PromoteAdmins grants the admin role to existing volunteers with the given Telegram ids.
func (r *Volunteers) PromoteAdmins(ctx context.Context, telegramIDs []int64) (int64, error) {
	if len(telegramIDs) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`UPDATE volunteers SET role = ? WHERE role <> ? AND telegram_id IN (?)`, RoleAdmin, RoleAdmin, telegramIDs)
	if err != nil {
		return 0, wrap("volunteers.promote_admins", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return 0, wrap("volunteers.promote_admins", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Administrators returns every admin.
func (r *Volunteers) Administrators(ctx context.Context) ([]Volunteer, error) {
	var out []Volunteer
	err := r.db.SelectContext(ctx, &out,
		r.db.Rebind(`SELECT `+volunteerColumns+` FROM volunteers WHERE role = ? ORDER BY id`), RoleAdmin)
	return out, wrap("volunteers.administrators", err)
}

// Members returns the volunteers and curators of an organization.
func (r *Volunteers) Members(ctx context.Context, orgID int64) ([]Volunteer, error) {
	var out []Volunteer
	err := r.db.SelectContext(ctx, &out,
		r.db.Rebind(`SELECT `+volunteerColumns+` FROM volunteers WHERE organization_id = ? AND role IN (?, ?) ORDER BY id`),
		orgID, RoleVolunteer, RoleCurator)
	return out, wrap("volunteers.members", err)
}

// List pages through all volunteers ordered by id.
func (r *Volunteers) List(ctx context.Context, limit, offset int) ([]Volunteer, error) {
	var out []Volunteer
	err := r.db.SelectContext(ctx, &out,
		r.db.Rebind(`SELECT `+volunteerColumns+` FROM volunteers ORDER BY id LIMIT ? OFFSET ?`), limit, offset)
	return out, wrap("volunteers.list", err)
}

func (r *Volunteers) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return wrap(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrap(op, ErrNotFound)
	}
	return nil
}

func normalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}
