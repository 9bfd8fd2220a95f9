package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for the assistant.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// =========================================================================
// USER OPERATIONS
// =========================================================================

const userColumns = `telegram_id, telegram_chat_id, bitrix_user_id, email, timezone, created_at, updated_at`

// UpsertUserParams holds parameters for UpsertUser.
type UpsertUserParams struct {
	TelegramID     int64
	TelegramChatID int64
	BitrixUserID   int64
	Email          string
}

// UpsertUser links a chat account to a CRM user. An existing timezone is kept.
func (r *Repository) UpsertUser(ctx context.Context, params UpsertUserParams) (*User, error) {
	slog.Info(fmt.Sprintf("%s - UpsertUser telegram_id=%d bitrix_user_id=%d", repoLogPrefix, params.TelegramID, params.BitrixUserID))

	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (telegram_id, telegram_chat_id, bitrix_user_id, email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (telegram_id) DO UPDATE SET
		   telegram_chat_id = EXCLUDED.telegram_chat_id,
		   bitrix_user_id = EXCLUDED.bitrix_user_id,
		   email = EXCLUDED.email,
		   updated_at = $5
		 RETURNING `+userColumns,
		params.TelegramID, params.TelegramChatID, params.BitrixUserID, params.Email, now)

	return scanUser(row)
}

// GetUserByTelegramID returns the linked user, or nil when the account is not linked.
func (r *Repository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	slog.Debug(fmt.Sprintf("%s - GetUserByTelegramID telegram_id=%d", repoLogPrefix, telegramID))

	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
	return scanUser(row)
}

// ListUsers returns every linked user ordered by link time.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, telegram_id`)
	if err != nil {
		return nil, fmt.Errorf("%s - ListUsers query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - ListUsers rows: %w", repoLogPrefix, err)
	}
	return users, nil
}

// SetUserTimezone stores the user's IANA zone. Returns false when the user does not exist.
func (r *Repository) SetUserTimezone(ctx context.Context, telegramID int64, zone string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET timezone = $2, updated_at = $3 WHERE telegram_id = $1`,
		telegramID, zone, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("%s - SetUserTimezone failed: %w", repoLogPrefix, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.TelegramID, &u.TelegramChatID, &u.BitrixUserID, &u.Email,
		&u.Timezone, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan user failed: %w", repoLogPrefix, err)
	}
	return &u, nil
}

// =========================================================================
// AUTH CODE OPERATIONS
// =========================================================================

const authCodeColumns = `id, telegram_id, email, bitrix_user_id, code_hash, expires_at, attempts, consumed_at, created_at`

// InsertAuthCodeParams holds parameters for InsertAuthCode.
type InsertAuthCodeParams struct {
	TelegramID   int64
	Email        string
	BitrixUserID int64
	CodeHash     string
	ExpiresAt    time.Time
}

// InsertAuthCode stores a new pending code with zero attempts.
func (r *Repository) InsertAuthCode(ctx context.Context, params InsertAuthCodeParams) (*AuthCode, error) {
	slog.Info(fmt.Sprintf("%s - InsertAuthCode telegram_id=%d", repoLogPrefix, params.TelegramID))

	row := r.pool.QueryRow(ctx,
		`INSERT INTO auth_codes (id, telegram_id, email, bitrix_user_id, code_hash, expires_at, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
		 RETURNING `+authCodeColumns,
		uuid.NewString(), params.TelegramID, params.Email, params.BitrixUserID,
		params.CodeHash, params.ExpiresAt.UTC(), time.Now().UTC())

	return scanAuthCode(row)
}

// GetLatestAuthCode returns the newest unconsumed code for the chat account, or nil.
func (r *Repository) GetLatestAuthCode(ctx context.Context, telegramID int64) (*AuthCode, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+authCodeColumns+`
		 FROM auth_codes
		 WHERE telegram_id = $1 AND consumed_at IS NULL
		 ORDER BY created_at DESC
		 LIMIT 1`, telegramID)
	return scanAuthCode(row)
}

// ReserveAuthCodeAttempt atomically counts one verification attempt against an
// unconsumed code. ok is false when the code is consumed or already has
// maxAttempts attempts; in that case nothing is written.
func (r *Repository) ReserveAuthCodeAttempt(ctx context.Context, id string, maxAttempts int) (attempts int, ok bool, err error) {
	err = r.pool.QueryRow(ctx,
		`UPDATE auth_codes SET attempts = attempts + 1
		 WHERE id = $1 AND consumed_at IS NULL AND attempts < $2
		 RETURNING attempts`, id, maxAttempts).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s - ReserveAuthCodeAttempt failed: %w", repoLogPrefix, err)
	}
	return attempts, true, nil
}

// ConsumeAuthCode marks a code as used. It reports false when another caller
// consumed it first.
func (r *Repository) ConsumeAuthCode(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE auth_codes SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`,
		id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("%s - ConsumeAuthCode failed: %w", repoLogPrefix, err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanAuthCode(row pgx.Row) (*AuthCode, error) {
	var a AuthCode
	err := row.Scan(
		&a.ID, &a.TelegramID, &a.Email, &a.BitrixUserID, &a.CodeHash,
		&a.ExpiresAt, &a.Attempts, &a.ConsumedAt, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan auth code failed: %w", repoLogPrefix, err)
	}
	return &a, nil
}

// =========================================================================
// CRM CACHE OPERATIONS
// =========================================================================

// UpsertTasksCache writes tasks keyed by bitrix_task_id in one batch. Empty input is a no-op.
func (r *Repository) UpsertTasksCache(ctx context.Context, tasks []CachedTask) error {
	if len(tasks) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, t := range tasks {
		batch.Queue(
			`INSERT INTO tasks_cache (bitrix_task_id, bitrix_user_id, title, status, deadline, updated_at, raw_payload, cached_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (bitrix_task_id) DO UPDATE SET
			   bitrix_user_id = EXCLUDED.bitrix_user_id,
			   title = EXCLUDED.title,
			   status = EXCLUDED.status,
			   deadline = EXCLUDED.deadline,
			   updated_at = EXCLUDED.updated_at,
			   raw_payload = EXCLUDED.raw_payload,
			   cached_at = EXCLUDED.cached_at`,
			t.BitrixTaskID, t.BitrixUserID, t.Title, t.Status, t.Deadline, t.UpdatedAt, jsonPayload(t.RawPayload), now)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s - UpsertTasksCache (%d rows) failed: %w", repoLogPrefix, len(tasks), err)
	}
	return nil
}

// UpsertEventsCache writes events keyed by bitrix_event_id in one batch. Empty input is a no-op.
func (r *Repository) UpsertEventsCache(ctx context.Context, events []CachedEvent) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(
			`INSERT INTO events_cache (bitrix_event_id, bitrix_user_id, title, start_at, end_at, updated_at, raw_payload, cached_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (bitrix_event_id) DO UPDATE SET
			   bitrix_user_id = EXCLUDED.bitrix_user_id,
			   title = EXCLUDED.title,
			   start_at = EXCLUDED.start_at,
			   end_at = EXCLUDED.end_at,
			   updated_at = EXCLUDED.updated_at,
			   raw_payload = EXCLUDED.raw_payload,
			   cached_at = EXCLUDED.cached_at`,
			e.BitrixEventID, e.BitrixUserID, e.Title, e.StartAt, e.EndAt, e.UpdatedAt, jsonPayload(e.RawPayload), now)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s - UpsertEventsCache (%d rows) failed: %w", repoLogPrefix, len(events), err)
	}
	return nil
}

// jsonPayload passes raw JSON as text so the server casts it to JSONB.
func jsonPayload(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// UpsertSyncState records the last successful fetch of entityType for a CRM user.
func (r *Repository) UpsertSyncState(ctx context.Context, bitrixUserID int64, entityType string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sync_state (bitrix_user_id, entity_type, last_synced_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (bitrix_user_id, entity_type) DO UPDATE SET last_synced_at = EXCLUDED.last_synced_at`,
		bitrixUserID, entityType, at.UTC())
	if err != nil {
		return fmt.Errorf("%s - UpsertSyncState failed: %w", repoLogPrefix, err)
	}
	return nil
}

// GetSyncState returns the sync marker, or nil when entityType was never synced.
func (r *Repository) GetSyncState(ctx context.Context, bitrixUserID int64, entityType string) (*SyncState, error) {
	var s SyncState
	err := r.pool.QueryRow(ctx,
		`SELECT bitrix_user_id, entity_type, last_synced_at
		 FROM sync_state
		 WHERE bitrix_user_id = $1 AND entity_type = $2`, bitrixUserID, entityType,
	).Scan(&s.BitrixUserID, &s.EntityType, &s.LastSyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - GetSyncState failed: %w", repoLogPrefix, err)
	}
	return &s, nil
}
