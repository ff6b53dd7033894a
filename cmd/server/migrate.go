package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"designguard/internal/db"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(d *db.Database, log *zap.Logger) error {
			if err := d.MigrateUp(); err != nil {
				return err
			}
			return logVersion(d, log)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateSteps <= 0 {
			return fmt.Errorf("--steps must be positive")
		}
		return withDatabase(cmd.Context(), func(d *db.Database, log *zap.Logger) error {
			if err := d.MigrateDown(migrateSteps); err != nil {
				return err
			}
			return logVersion(d, log)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(d *db.Database, log *zap.Logger) error {
			return logVersion(d, log)
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

func withDatabase(ctx context.Context, fn func(*db.Database, *zap.Logger) error) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(database, log)
}

func logVersion(d *db.Database, log *zap.Logger) error {
	version, dirty, err := d.Version()
	if err != nil {
		return err
	}
	log.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
