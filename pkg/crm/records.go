package crm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// User is a Bitrix24 user as returned by user.get.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	LastName string `json:"last_name"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.LastName)
}

// Task is a task from tasks.task.list.
type Task struct {
	ID            int64           `json:"id"`
	Title         string          `json:"title"`
	Status        string          `json:"status"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
	ResponsibleID int64           `json:"responsible_id"`
	CreatedAt     *time.Time      `json:"created_at,omitempty"`
	ChangedAt     *time.Time      `json:"changed_at,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// UpdatedAt returns the change timestamp, falling back to creation time.
func (t Task) UpdatedAt() *time.Time {
	if t.ChangedAt != nil {
		return t.ChangedAt
	}
	return t.CreatedAt
}

// Event is a calendar event from calendar.event.get.
type Event struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	From      *time.Time      `json:"from,omitempty"`
	To        *time.Time      `json:"to,omitempty"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// Employee is the wider user projection used by the employee export.
type Employee struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	LastName      string          `json:"last_name"`
	SecondName    string          `json:"second_name"`
	Email         string          `json:"email"`
	Position      string          `json:"position"`
	DepartmentIDs []int64         `json:"department_ids"`
	Phone         string          `json:"phone"`
	Active        bool            `json:"active"`
	DateRegister  string          `json:"date_register"`
	LastLogin     string          `json:"last_login"`
	Raw           json.RawMessage `json:"-"`
}

// FullName joins first, second and last name, skipping empty parts.
func (e Employee) FullName() string {
	var parts []string
	for _, p := range []string{e.Name, e.SecondName, e.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// wireRecord is a raw JSON object. Bitrix24 mixes UPPER_CASE and camelCase keys
// between methods, so lookups accept several candidate keys.
type wireRecord map[string]json.RawMessage

func decodeRecord(raw json.RawMessage) (wireRecord, error) {
	var rec wireRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("record is not a JSON object: %w", err)
	}
	return rec, nil
}

func (r wireRecord) lookup(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok {
			continue
		}
		v = bytes.TrimSpace(v)
		if len(v) == 0 || bytes.Equal(v, []byte("null")) {
			continue
		}
		return v, true
	}
	return nil, false
}

func (r wireRecord) str(keys ...string) string {
	v, ok := r.lookup(keys...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return strconv.FormatBool(b)
	}
	// numbers and anything else keep their literal text
	return string(v)
}

// id reads a required integer that Bitrix24 may encode as "123" or 123.
func (r wireRecord) id(keys ...string) (int64, error) {
	v, ok := r.lookup(keys...)
	if !ok {
		return 0, fmt.Errorf("missing field %s", keys[0])
	}
	return parseInt(v, keys[0])
}

func (r wireRecord) optionalInt(keys ...string) (int64, error) {
	v, ok := r.lookup(keys...)
	if !ok {
		return 0, nil
	}
	return parseInt(v, keys[0])
}

func parseInt(v json.RawMessage, field string) (int64, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %s: %q is not an integer", field, s)
		}
		return n, nil
	}
	var n int64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, fmt.Errorf("field %s: %s is not an integer", field, string(v))
	}
	return n, nil
}

func (r wireRecord) timestamp(loc *time.Location, keys ...string) (*time.Time, error) {
	s := r.str(keys...)
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s, loc)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", keys[0], err)
	}
	return &t, nil
}

// timeLayouts are the formats observed in Bitrix24 responses. Zone-less layouts
// are interpreted in the supplied location.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02.01.2006 15:04:05",
	"02.01.2006",
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func decodeUser(raw json.RawMessage) (User, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return User{}, err
	}
	id, err := rec.id("ID", "id")
	if err != nil {
		return User{}, fmt.Errorf("user: %w", err)
	}
	return User{
		ID:       id,
		Email:    rec.str("EMAIL", "email"),
		Name:     rec.str("NAME", "name"),
		LastName: rec.str("LAST_NAME", "lastName"),
	}, nil
}

func decodeTask(raw json.RawMessage) (Task, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return Task{}, err
	}
	id, err := rec.id("ID", "id")
	if err != nil {
		return Task{}, fmt.Errorf("task: %w", err)
	}
	if _, ok := rec.lookup("TITLE", "title"); !ok {
		return Task{}, fmt.Errorf("task %d: missing field TITLE", id)
	}
	t := Task{
		ID:     id,
		Title:  rec.str("TITLE", "title"),
		Status: rec.str("STATUS", "status"),
		Raw:    raw,
	}
	if t.ResponsibleID, err = rec.optionalInt("RESPONSIBLE_ID", "responsibleId"); err != nil {
		return Task{}, fmt.Errorf("task %d: %w", id, err)
	}
	if t.Deadline, err = rec.timestamp(time.UTC, "DEADLINE", "deadline"); err != nil {
		return Task{}, fmt.Errorf("task %d: %w", id, err)
	}
	if t.CreatedAt, err = rec.timestamp(time.UTC, "CREATED_DATE", "createdDate"); err != nil {
		return Task{}, fmt.Errorf("task %d: %w", id, err)
	}
	if t.ChangedAt, err = rec.timestamp(time.UTC, "CHANGED_DATE", "changedDate"); err != nil {
		return Task{}, fmt.Errorf("task %d: %w", id, err)
	}
	return t, nil
}

func decodeEvent(raw json.RawMessage) (Event, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return Event{}, err
	}
	id, err := rec.id("ID", "id")
	if err != nil {
		return Event{}, fmt.Errorf("event: %w", err)
	}
	ev := Event{
		ID:    id,
		Title: rec.str("NAME", "TITLE", "name"),
		Raw:   raw,
	}
	// calendar dates come as local wall time plus TZ_FROM / TZ_TO zone names
	fromLoc := zoneOr(rec.str("TZ_FROM"), time.UTC)
	toLoc := zoneOr(rec.str("TZ_TO"), fromLoc)
	if ev.From, err = rec.timestamp(fromLoc, "DATE_FROM", "dateFrom"); err != nil {
		return Event{}, fmt.Errorf("event %d: %w", id, err)
	}
	if ev.To, err = rec.timestamp(toLoc, "DATE_TO", "dateTo"); err != nil {
		return Event{}, fmt.Errorf("event %d: %w", id, err)
	}
	if ev.CreatedAt, err = rec.timestamp(fromLoc, "DATE_CREATE", "dateCreate"); err != nil {
		return Event{}, fmt.Errorf("event %d: %w", id, err)
	}
	return ev, nil
}

func decodeEmployee(raw json.RawMessage) (Employee, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return Employee{}, err
	}
	id, err := rec.id("ID", "id")
	if err != nil {
		return Employee{}, fmt.Errorf("employee: %w", err)
	}
	e := Employee{
		ID:           id,
		Name:         rec.str("NAME"),
		LastName:     rec.str("LAST_NAME"),
		SecondName:   rec.str("SECOND_NAME"),
		Email:        rec.str("EMAIL"),
		Position:     rec.str("WORK_POSITION"),
		Phone:        rec.str("PERSONAL_MOBILE", "WORK_PHONE", "PERSONAL_PHONE"),
		Active:       rec.str("ACTIVE") == "true" || rec.str("ACTIVE") == "Y",
		DateRegister: rec.str("DATE_REGISTER"),
		LastLogin:    rec.str("LAST_LOGIN"),
		Raw:          raw,
	}
	if v, ok := rec.lookup("UF_DEPARTMENT"); ok {
		var many []json.RawMessage
		if err := json.Unmarshal(v, &many); err != nil {
			many = []json.RawMessage{v}
		}
		for _, d := range many {
			n, err := parseInt(d, "UF_DEPARTMENT")
			if err != nil {
				return Employee{}, fmt.Errorf("employee %d: %w", id, err)
			}
			e.DepartmentIDs = append(e.DepartmentIDs, n)
		}
	}
	return e, nil
}

func zoneOr(name string, fallback *time.Location) *time.Location {
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}

// decodeList accepts either a JSON array or null.
func decodeList(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("expected a JSON array: %w", err)
	}
	return items, nil
}
