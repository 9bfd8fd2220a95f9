// Package export copies the CRM employee directory into a local SQLite file.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wookiee/ai-assistant/pkg/crm"
)

const logPrefix = "export:store"

// DefaultPath is the export file used when none is given.
const DefaultPath = "bitrix_users.db"

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const schema = `
CREATE TABLE IF NOT EXISTS employees (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	bitrix_id      INTEGER NOT NULL UNIQUE,
	name           TEXT NOT NULL DEFAULT '',
	last_name      TEXT NOT NULL DEFAULT '',
	second_name    TEXT NOT NULL DEFAULT '',
	full_name      TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL DEFAULT '',
	position       TEXT NOT NULL DEFAULT '',
	department_ids TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	active         INTEGER NOT NULL DEFAULT 1,
	date_register  TEXT NOT NULL DEFAULT '',
	last_login     TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_employees_email ON employees(email);
`

// Row is one stored employee.
type Row struct {
	BitrixID      int64
	FullName      string
	Email         string
	Position      string
	DepartmentIDs []int64
	Active        bool
	CreatedAt     string
	UpdatedAt     string
}

// Store is the SQLite employee database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite file at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s - create directory %s: %w", logPrefix, dir, err)
		}
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%s - open %s: %w", logPrefix, path, err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s - enable WAL: %w", logPrefix, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s - apply schema: %w", logPrefix, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertEmployees inserts or updates employees keyed by bitrix_id in a single
// transaction. created_at is kept from the first export.
func (s *Store) UpsertEmployees(ctx context.Context, employees []crm.Employee) (int, error) {
	if len(employees) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s - begin: %w", logPrefix, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO employees (bitrix_id, name, last_name, second_name, full_name, email, position,
			department_ids, phone, active, date_register, last_login, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bitrix_id) DO UPDATE SET
			name = excluded.name,
			last_name = excluded.last_name,
			second_name = excluded.second_name,
			full_name = excluded.full_name,
			email = excluded.email,
			position = excluded.position,
			department_ids = excluded.department_ids,
			phone = excluded.phone,
			active = excluded.active,
			date_register = excluded.date_register,
			last_login = excluded.last_login,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("%s - prepare upsert: %w", logPrefix, err)
	}
	defer stmt.Close()

	ts := s.now().UTC().Format(time.RFC3339)
	for _, e := range employees {
		_, err := stmt.ExecContext(ctx,
			e.ID, e.Name, e.LastName, e.SecondName, e.FullName(), e.Email, e.Position,
			joinIDs(e.DepartmentIDs), e.Phone, e.Active, e.DateRegister, e.LastLogin, ts, ts)
		if err != nil {
			return 0, fmt.Errorf("%s - upsert employee %d: %w", logPrefix, e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s - commit: %w", logPrefix, err)
	}
	slog.Debug(fmt.Sprintf("%s - Upserted %d employees", logPrefix, len(employees)))
	return len(employees), nil
}

// Count returns the number of stored employees.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM employees`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s - count: %w", logPrefix, err)
	}
	return n, nil
}

// Get returns one employee by CRM id, or nil when absent.
func (s *Store) Get(ctx context.Context, bitrixID int64) (*Row, error) {
	var (
		r    Row
		deps string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT bitrix_id, full_name, email, position, department_ids, active, created_at, updated_at
		FROM employees WHERE bitrix_id = ?`, bitrixID).
		Scan(&r.BitrixID, &r.FullName, &r.Email, &r.Position, &deps, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - get employee %d: %w", logPrefix, bitrixID, err)
	}
	r.DepartmentIDs, err = splitIDs(deps)
	if err != nil {
		return nil, fmt.Errorf("%s - employee %d: %w", logPrefix, bitrixID, err)
	}
	return &r, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var ids []int64
	for _, p := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad department id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
