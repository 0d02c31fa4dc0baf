/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/inkwell-comics/modsvc/internal/db"
	"github.com/spf13/cobra"
)

const defaultMigrationsURL = "file://internal/db/migrations"

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrator, err := newMigrator(cmd)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = migrator.Close()
		}()

		if err := migrator.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				return nil
			}
			return fmt.Errorf("migrate up failed: %w", err)
		}
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		all, _ := cmd.Flags().GetBool("all")
		if !all && steps < 1 {
			return errors.New("--steps must be at least 1")
		}

		migrator, err := newMigrator(cmd)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = migrator.Close()
		}()

		if all {
			err = migrator.Down()
		} else {
			err = migrator.Steps(-steps)
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)

	migrateCmd.PersistentFlags().String("source", defaultMigrationsURL, "migrations source URL")
	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to roll back")
	migrateDownCmd.Flags().Bool("all", false, "roll back every migration")
}

func newMigrator(cmd *cobra.Command) (*migrate.Migrate, error) {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	source, _ := cmd.Flags().GetString("source")

	migrator, err := migrate.New(source, db.PostgresURL(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("init migrator failed: %w", err)
	}
	return migrator, nil
}
