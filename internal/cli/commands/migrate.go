package commands

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

const defaultMigrationsDir = "migrations"

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|version]",
		Short: "Apply or inspect database migrations",
		Long:  "Apply pending migrations (default), roll back one step with 'down', or print the current version.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("migrations")

			switch action {
			case "up":
				return runMigrations(cfg.DatabaseURL, dir)
			case "down", "version":
				return withMigrator(cfg.DatabaseURL, dir, func(m *migrate.Migrate) error {
					if action == "down" {
						if err := m.Steps(-1); err != nil {
							return fmt.Errorf("failed to roll back: %w", err)
						}
					}
					version, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Println("no migrations applied")
						return nil
					}
					if err != nil {
						return fmt.Errorf("failed to get migration version: %w", err)
					}
					fmt.Printf("version %d (dirty: %t)\n", version, dirty)
					return nil
				})
			default:
				return fmt.Errorf("unknown migrate action %q", action)
			}
		},
	}

	cmd.Flags().String("migrations", defaultMigrationsDir, "Directory holding the SQL migrations")

	return cmd
}

func withMigrator(databaseURL, dir string, fn func(m *migrate.Migrate) error) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations dir: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(abs), "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return fn(m)
}

func runMigrations(databaseURL, dir string) error {
	return withMigrator(databaseURL, dir, func(m *migrate.Migrate) error {
		upErr := m.Up()
		if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
			return fmt.Errorf("failed to apply migrations: %w", upErr)
		}

		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("failed to get migration version: %w", err)
		}

		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			log.Println("migrations: database is up to date (no migrations applied)")
		case dirty:
			return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
		case errors.Is(upErr, migrate.ErrNoChange):
			log.Printf("migrations: database is up to date (version %d)", version)
		default:
			log.Printf("migrations: applied successfully (version %d)", version)
		}
		return nil
	})
}
