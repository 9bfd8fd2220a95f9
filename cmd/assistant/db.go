package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/wookiee/ai-assistant/internal/config"
	"github.com/wookiee/ai-assistant/pkg/db"
)

const defaultTestDatabase = "assistant_test"

func newMigrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	migrate.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Create the schema and run migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
					if err := db.EnsureSchema(ctx, pool, cfg.DatabaseSchema); err != nil {
						return err
					}
					migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
					if err != nil {
						return fmt.Errorf("load migrations: %w", err)
					}
					if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
						return fmt.Errorf("run migrations: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
					return db.MigrationStatus(ctx, pool, cfg.DatabaseSchema, cfg.MigrationPath)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration (not supported by current migrations)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
					return db.MigrationDown(ctx, pool, cfg.MigrationPath)
				})
			},
		},
	)
	return migrate
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Truncate all assistant tables; schema is preserved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if err := db.ClearAssistant(ctx, pool); err != nil {
					return fmt.Errorf("clear assistant: %w", err)
				}
				return nil
			})
		},
	}
}

func newEnsureDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-db [name]",
		Short: "Create a database on the DATABASE_URL host if missing (default " + defaultTestDatabase + ")",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			dbName := defaultTestDatabase
			if len(args) > 0 && args[0] != "" {
				dbName = args[0]
			}
			targetURL, err := db.WithDatabase(cfg.DatabaseURL, dbName)
			if err != nil {
				return err
			}
			if err := db.EnsureDatabase(cmd.Context(), targetURL, cfg.DatabaseSchema); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database %q is ready.\n", dbName)
			return nil
		},
	}
}

func withPool(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseSchema)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}
