package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearAssistant truncates every assistant table. Schema is preserved; only data
// is removed, so all chat accounts have to be linked again afterwards.
func ClearAssistant(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing assistant tables", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE
		auth_codes,
		tasks_cache,
		events_cache,
		sync_state,
		users
		RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Assistant tables cleared", clearLogPrefix))
	return nil
}
