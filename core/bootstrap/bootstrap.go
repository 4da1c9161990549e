package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/volunteerbot/core/config"
	coredatabase "github.com/m3rciful/volunteerbot/core/database"
	"github.com/m3rciful/volunteerbot/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config     *coreconfig.Config
	Database   coredatabase.Config
	Migrations coredatabase.Migrations
	Modules    Modules

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, coredatabase.Config, *sqlx.DB, coredatabase.Migrations) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
}

func (o *Options) fillDefaults() {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
}

// Run initializes the logger, connects to the database, applies migrations
// and runs the configured seeders in order. The database is closed again
// when a later step fails.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}
	opts.fillDefaults()

	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}
	if err := opts.Database.Normalize(); err != nil {
		return nil, fmt.Errorf("bootstrap: database config: %w", err)
	}
	db, err := opts.Connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	if err := prepare(ctx, opts, db); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return &Result{DB: db}, nil
}

func prepare(ctx context.Context, opts Options, db *sqlx.DB) error {
	if opts.Migrations.FS != nil {
		if err := opts.Migrate(ctx, opts.Database, db, opts.Migrations); err != nil {
			return fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	}
	if err := opts.Modules.seed(ctx, db); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}
