// Package store is the data access layer of the volunteer bot: volunteers,
// organizations, membership claims and activity reports, backed by sqlx.
package store

import (
	"crypto/md5"
	"embed"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/volunteerbot/core/cache"
	coredatabase "github.com/m3rciful/volunteerbot/core/database"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("store: already exists")

//go:embed migrations
var migrationsFS embed.FS

// Migrations returns the embedded schema for driver.
func Migrations(driver string) coredatabase.Migrations {
	dir := "migrations/postgres"
	if driver == coredatabase.DriverSQLite {
		dir = "migrations/sqlite"
	}
	return coredatabase.Migrations{FS: migrationsFS, Dir: dir}
}

// Store groups the repositories sharing one database handle.
type Store struct {
	Volunteers    *Volunteers
	Organizations *Organizations
	Claims        *Claims
	Reports       *Reports
}

// New builds every repository on db. c may be nil to disable caching.
func New(db *sqlx.DB, c cache.Cache) *Store {
	return &Store{
		Volunteers:    &Volunteers{db: db, now: time.Now},
		Organizations: &Organizations{db: db, cache: c, now: time.Now},
		Claims:        &Claims{db: db, now: time.Now},
		Reports:       &Reports{db: db, now: time.Now},
	}
}

// HashPayload returns the hex md5 of payload. Reports sharing a hash describe the same link.
func HashPayload(payload string) string {
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}
