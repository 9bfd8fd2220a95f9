package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ensureLogPrefix = "db:ensure"

// safeDBName matches database and schema names we are willing to create.
var safeDBName = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// WithDatabase returns databaseURL pointing at dbname. Host, credentials and
// query parameters are kept.
func WithDatabase(databaseURL, dbname string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	u.Path = "/" + dbname
	return u.String(), nil
}

// EnsureDatabase creates the database named in databaseURL when it is missing,
// then creates schema inside it. The maintenance database "postgres" is used for
// CREATE DATABASE, so the role needs CREATEDB.
func EnsureDatabase(ctx context.Context, databaseURL, schema string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	dbname, err := databaseName(u)
	if err != nil {
		return err
	}

	created, err := createDatabase(ctx, maintenanceURL(u), dbname)
	if err != nil {
		return err
	}
	if created {
		slog.Info(fmt.Sprintf("%s - Created database %q", ensureLogPrefix, dbname))
	} else {
		slog.Info(fmt.Sprintf("%s - Database %q already exists", ensureLogPrefix, dbname))
	}

	if strings.TrimSpace(schema) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to %q: %w", ensureLogPrefix, dbname, err)
	}
	defer pool.Close()
	return EnsureSchema(ctx, pool, schema)
}

func databaseName(u *url.URL) (string, error) {
	name := strings.TrimSpace(strings.TrimPrefix(u.Path, "/"))
	if name == "" {
		return "", fmt.Errorf("%s - database name empty in URL", ensureLogPrefix)
	}
	if !safeDBName.MatchString(name) {
		return "", fmt.Errorf("%s - database name %q contains invalid characters", ensureLogPrefix, name)
	}
	return name, nil
}

// createDatabase reports whether dbname had to be created.
func createDatabase(ctx context.Context, adminURL, dbname string) (bool, error) {
	cfg, err := pgxpool.ParseConfig(adminURL)
	if err != nil {
		return false, fmt.Errorf("%s - failed to parse postgres URL: %w", ensureLogPrefix, err)
	}
	// CREATE DATABASE cannot run inside the implicit transaction of the extended protocol
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return false, fmt.Errorf("%s - failed to connect to postgres: %w", ensureLogPrefix, err)
	}
	defer pool.Close()

	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, dbname).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s - failed to check database: %w", ensureLogPrefix, err)
	}
	if exists {
		return false, nil
	}
	if _, err := pool.Exec(ctx, "CREATE DATABASE "+quoteIdent(dbname)); err != nil {
		return false, fmt.Errorf("%s - CREATE DATABASE failed: %w", ensureLogPrefix, err)
	}
	return true, nil
}

func maintenanceURL(u *url.URL) string {
	admin := *u
	admin.Path = "/postgres"
	return admin.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
