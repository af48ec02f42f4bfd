package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"smsdispatch/internal/config"
	"smsdispatch/internal/logger"
	"smsdispatch/migrations"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the smsdispatch database schema",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		schemaCmd("up", "Apply pending migrations", runUp),
		schemaCmd("down", "Roll back the last applied migration", runDown),
		schemaCmd("status", "Show applied and pending migrations", showStatus),
		schemaCmd("reset", "Roll back every migration and reapply", runReset),
		seedCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type runner func(ctx context.Context, db *sql.DB, log zerolog.Logger) error

func schemaCmd(use, short string, run runner) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), run)
		},
	}
}

// withDatabase loads config, connects and ensures the tracking table
func withDatabase(ctx context.Context, run runner) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.Log)

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createMigrationTable(ctx, db); err != nil {
		return err
	}

	return run(ctx, db, log)
}

func createMigrationTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// appliedMigrations maps version to applied time
func appliedMigrations(ctx context.Context, db *sql.DB) (map[int]time.Time, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

func runUp(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	all, err := migrations.Load()
	if err != nil {
		return err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	count := 0
	for _, m := range all {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return fmt.Errorf("failed to execute migration SQL: %w", err)
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %03d_%s: %w", m.Version, m.Name, err)
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("migration applied")
		count++
	}

	log.Info().Int("applied", count).Msg("schema up to date")
	return nil
}

func runDown(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	all, err := migrations.Load()
	if err != nil {
		return err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	for i := len(all) - 1; i >= 0; i-- {
		m := all[i]
		if _, ok := applied[m.Version]; !ok {
			continue
		}
		if err := rollback(ctx, db, m); err != nil {
			return err
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("migration rolled back")
		return nil
	}

	log.Warn().Msg("no migrations to roll back")
	return nil
}

func rollback(ctx context.Context, db *sql.DB, m migrations.Migration) error {
	err := inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.Down); err != nil {
			return fmt.Errorf("failed to execute rollback SQL: %w", err)
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to roll back migration %03d_%s: %w", m.Version, m.Name, err)
	}
	return nil
}

func runReset(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	all, err := migrations.Load()
	if err != nil {
		return err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	for i := len(all) - 1; i >= 0; i-- {
		if _, ok := applied[all[i].Version]; !ok {
			continue
		}
		if err := rollback(ctx, db, all[i]); err != nil {
			return err
		}
	}
	log.Warn().Msg("all migrations rolled back")

	return runUp(ctx, db, log)
}

func showStatus(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	all, err := migrations.Load()
	if err != nil {
		return err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })

	fmt.Printf("%-10s %-40s %-12s %-20s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Println(strings.Repeat("-", 85))
	for _, m := range all {
		status, at := "pending", "-"
		if t, ok := applied[m.Version]; ok {
			status, at = "applied", t.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%03d        %-40s %-12s %-20s\n", m.Version, m.Name, status, at)
	}
	fmt.Println(strings.Repeat("-", 85))
	fmt.Printf("%d/%d migrations applied\n", len(applied), len(all))
	return nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
