package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/volunteerbot/core/logger"
)

// Connect opens the database connection, configures the pool, and verifies connectivity.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	target := []slog.Attr{
		slog.String("driver", cfg.Driver),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}
	if cfg.Driver == DriverSQLite {
		target = []slog.Attr{slog.String("driver", cfg.Driver), slog.String("db", cfg.Path)}
	}

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN())
	took := logger.RoundMS(time.Since(start))
	if err != nil {
		logger.Error(ctx, logger.ComponentDB, "db.connect",
			append(target, slog.Duration("duration", took), slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	if cfg.Driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db pragma: %w", err)
		}
	}

	logger.Info(ctx, logger.ComponentDB, "db.connect",
		append(target,
			slog.String("status", "ok"),
			slog.Int("pool_open", cfg.MaxConnections),
			slog.Duration("duration", took),
		)...)
	return db, nil
}

// WaitForPostgres tries to connect to the DB until it is ready or timeout is reached.
func WaitForPostgres(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		db, err := sql.Open(DriverPostgres, dsn)
		if err == nil {
			err = db.PingContext(ctx)
			_ = db.Close()
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout reached waiting for database: %w", lastErr)
		case <-time.After(2 * time.Second):
		}
	}
}
