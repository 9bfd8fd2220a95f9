package db

import "time"

// Sync entity types recorded in sync_state.
const (
	EntityTasks  = "tasks"
	EntityEvents = "events"
)

// User represents a row in the users table: a chat account linked to a CRM user.
type User struct {
	TelegramID     int64     `json:"telegram_id"`
	TelegramChatID int64     `json:"telegram_chat_id"`
	BitrixUserID   int64     `json:"bitrix_user_id"`
	Email          string    `json:"email"`
	Timezone       *string   `json:"timezone,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TimezoneOr returns the user's zone, or fallback when none is stored.
func (u *User) TimezoneOr(fallback string) string {
	if u.Timezone == nil || *u.Timezone == "" {
		return fallback
	}
	return *u.Timezone
}

// AuthCode represents a row in the auth_codes table.
type AuthCode struct {
	ID           string     `json:"id"`
	TelegramID   int64      `json:"telegram_id"`
	Email        string     `json:"email"`
	BitrixUserID int64      `json:"bitrix_user_id"`
	CodeHash     string     `json:"-"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Attempts     int        `json:"attempts"`
	ConsumedAt   *time.Time `json:"consumed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CachedTask represents a row in the tasks_cache table.
type CachedTask struct {
	BitrixTaskID int64      `json:"bitrix_task_id"`
	BitrixUserID int64      `json:"bitrix_user_id"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	RawPayload   []byte     `json:"raw_payload,omitempty"`
}

// CachedEvent represents a row in the events_cache table.
type CachedEvent struct {
	BitrixEventID int64      `json:"bitrix_event_id"`
	BitrixUserID  int64      `json:"bitrix_user_id"`
	Title         string     `json:"title"`
	StartAt       *time.Time `json:"start_at,omitempty"`
	EndAt         *time.Time `json:"end_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	RawPayload    []byte     `json:"raw_payload,omitempty"`
}

// SyncState represents a row in the sync_state table.
type SyncState struct {
	BitrixUserID int64     `json:"bitrix_user_id"`
	EntityType   string    `json:"entity_type"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}
