// Package db provides the PostgreSQL persistence layer of the assistant: pooling,
// migrations and the repository over users, auth codes and CRM caches.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// DefaultSchema holds all assistant tables unless DATABASE_SCHEMA overrides it.
const DefaultSchema = "assistant"

// NewPool creates a new pgx connection pool from the given database URL.
// Unqualified table names resolve in schema, then public.
func NewPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	if schema = strings.TrimSpace(schema); schema != "" {
		if !safeDBName.MatchString(schema) {
			return nil, fmt.Errorf("%s - schema name %q contains invalid characters", logPrefix, schema)
		}
		config.ConnConfig.RuntimeParams["search_path"] = schema + ",public"
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established (schema=%s)", logPrefix, schema))
	return pool, nil
}

// EnsureSchema creates schema if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return nil
	}
	if !safeDBName.MatchString(schema) {
		return fmt.Errorf("%s - schema name %q contains invalid characters", logPrefix, schema)
	}
	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(schema)); err != nil {
		return fmt.Errorf("%s - CREATE SCHEMA %s: %w", logPrefix, schema, err)
	}
	return nil
}

// RunMigrations applies SQL migration files in order. Migrations are idempotent
// (IF NOT EXISTS) so re-running them on startup is safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFiles []string) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrationFiles)))

	for i, sql := range migrationFiles {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("%s - migration %d failed: %w", logPrefix, i+1, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// MigrationStatus reports whether migrations have been applied by checking for the users table.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, schema, migrationPath string) error {
	const statusLogPrefix = "db:MigrationStatus"

	if schema == "" {
		schema = "public"
	}
	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = 'users')`,
		schema).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}

	if exists {
		fmt.Printf("Migration status: applied (schema %s present, %d migration files in %s)\n", schema, len(files), migrationPath)
	} else {
		fmt.Printf("Migration status: not applied (run 'assistant migrate up'). %d migration files in %s\n", len(files), migrationPath)
	}
	return nil
}

// MigrationDown is a no-op: migrations are forward-only.
func MigrationDown(ctx context.Context, pool *pgxpool.Pool, _ string) error {
	fmt.Println("Migration down: not supported (migrations are forward-only). Use a database backup to roll back.")
	return nil
}
