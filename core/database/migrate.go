package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/volunteerbot/core/logger"
)

// Migrations points at a directory of *.up.sql / *.down.sql files inside an fs.FS.
type Migrations struct {
	FS  fs.FS
	Dir string
}

// RunMigrations applies all up migrations. SQLite databases are migrated
// through db itself so that in-memory databases see the schema; Postgres is
// migrated through its own connection after the server answers.
func RunMigrations(ctx context.Context, cfg Config, db *sqlx.DB, src Migrations) error {
	if src.FS == nil {
		return fmt.Errorf("migrations: no source filesystem")
	}
	dir := src.Dir
	if dir == "" {
		dir = "."
	}

	files := listMigrationFiles(src.FS, dir)
	preview, truncated := logger.SummarizeStrings(files, 6)
	attrs := []slog.Attr{
		slog.String("path", dir),
		slog.String("driver", cfg.Driver),
		slog.Int("files_total", len(files)),
	}
	if preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview))
	}
	if truncated {
		attrs = append(attrs, slog.Bool("files_truncated", true))
	}
	logger.Debug(ctx, "db.migrate", "resolve", attrs...)

	fsrc, err := iofs.New(src.FS, dir)
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}

	m, release, err := newMigrator(ctx, cfg, db, fsrc)
	if err != nil {
		logger.Error(ctx, "db.migrate", "init", slog.String("err", err.Error()))
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer release()

	fromVer, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := logger.RoundMS(time.Since(start))

	switch {
	case upErr == nil:
	case errors.Is(upErr, migrate.ErrNoChange):
		logger.Info(ctx, "db.migrate", "summary",
			slog.Uint64("from_ver", uint64(fromVer)),
			slog.Uint64("to_ver", uint64(fromVer)),
			slog.Int("files", 0),
			slog.Duration("duration", took),
		)
		return nil
	default:
		logger.Error(ctx, "db.migrate", "apply",
			slog.String("err", upErr.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	toVer, _, _ := m.Version()
	applied := selectApplied(files, uint64(fromVer), uint64(toVer))
	if len(applied) > 0 {
		names, cut := logger.SummarizeStrings(applied, 6)
		logger.Debug(ctx, "db.migrate", "apply",
			slog.Int("files_total", len(applied)),
			slog.String("files_preview", names),
			slog.Bool("files_truncated", cut),
		)
	}
	logger.Info(ctx, "db.migrate", "summary",
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

// newMigrator returns the migrator and a release func. The sqlite driver
// wraps the caller's handle, so releasing it must not close the database.
func newMigrator(ctx context.Context, cfg Config, db *sqlx.DB, src source.Driver) (*migrate.Migrate, func(), error) {
	switch cfg.Driver {
	case DriverSQLite:
		if db == nil {
			return nil, nil, fmt.Errorf("sqlite migrations need an open database")
		}
		drv, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
		if err != nil {
			return nil, nil, err
		}
		m, err := migrate.NewWithInstance("iofs", src, DriverSQLite, drv)
		if err != nil {
			return nil, nil, err
		}
		return m, func() { _ = src.Close() }, nil
	default:
		if err := WaitForPostgres(ctx, cfg.DSN(), 30*time.Second); err != nil {
			return nil, nil, err
		}
		m, err := migrate.NewWithSourceInstance("iofs", src, cfg.MigrateURL())
		if err != nil {
			return nil, nil, err
		}
		return m, func() { _, _ = m.Close() }, nil
	}
}

func listMigrationFiles(fsys fs.FS, dir string) []string {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(name, ".up.sql") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

func selectApplied(files []string, from, to uint64) []string {
	if to <= from {
		return nil
	}
	var out []string
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
