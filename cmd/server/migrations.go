package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/quill-api/internal/config"
	"github.com/phrazzld/quill-api/internal/platform/postgres"
)

// migrationCommands lists the goose commands accepted by the migrate subcommand.
var migrationCommands = []string{"up", "down", "reset", "status", "version"}

// runMigrations opens the database and applies one goose command.
func runMigrations(ctx context.Context, cfg *config.Config, command string, log *slog.Logger) error {
	db, err := setupAppDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("error closing database connection", "error", cerr)
		}
	}()

	if err := postgres.Migrate(ctx, db, command, log); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
