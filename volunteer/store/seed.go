package store

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/volunteerbot/core/bootstrap"
	"github.com/m3rciful/volunteerbot/core/logger"
)

// AdminSeeder promotes already known volunteers listed in admins.
// Users that never wrote to the bot are promoted on first contact instead.
func AdminSeeder(admins []int64) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
		repo := &Volunteers{db: db}
		n, err := repo.PromoteAdmins(ctx, admins)
		if err != nil {
			return err
		}
		logger.Info(ctx, logger.ComponentDB, "seed.admins",
			slog.Int("configured", len(admins)),
			slog.Int64("promoted", n),
		)
		return nil
	})
}
