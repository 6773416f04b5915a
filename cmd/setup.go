package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/trackbridge/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", config.Database.Path)
	if err := r.openDatabase(ctx, config); err != nil {
		return err
	}

	statuses, err := shared.Migrations(ctx, r.db)
	if err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	r.writePlain("✓ Database ready at %s\n", config.Database.Path)
	for _, s := range statuses {
		applied := "pending"
		if s.AppliedAt != nil {
			applied = "applied " + s.AppliedAt.Local().Format(time.DateTime)
		}
		r.writePlain("  %04d %-20s %s\n", s.Version, s.Name, applied)
	}
	return nil
}

// SetupRollback reverts the most recent migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	m, err := shared.RollbackMigrationContext(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return r.writePlain("✓ Rolled back %04d %s\n", m.Version, m.Name)
}

// SetupConfig writes the embedded default configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPathOrDefault()
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Configuration written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set client_id and client_secret for spotify and soundcloud (or SPCLIENT_* / SCCLIENT_* in .env)\n")
	r.writePlain("2. Run 'trackbridge setup database'\n")
	r.writePlain("3. Run 'trackbridge auth login -p spotify' and 'trackbridge auth login -p soundcloud'\n")
	return nil
}
