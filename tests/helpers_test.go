// Package tests contains end-to-end tests for the assistant. They drive the chat
// command pipeline and the COMMS job pipeline against a fake Bitrix24 webhook
// and an embedded NATS server.
package tests

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wookiee/ai-assistant/pkg/db"
)

// fakeBitrix serves the webhook methods the assistant calls.
type fakeBitrix struct {
	mu       sync.Mutex
	users    []map[string]any
	tasks    []map[string]any
	events   []map[string]any
	notified []string
	calls    map[string]int
	failNext map[string]int
}

func newFakeBitrix(t *testing.T) (*fakeBitrix, string) {
	t.Helper()
	f := &fakeBitrix{calls: map[string]int{}, failNext: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv.URL + "/rest/1/secret"
}

func (f *fakeBitrix) serve(w http.ResponseWriter, r *http.Request) {
	method := path.Base(r.URL.Path)
	body, _ := io.ReadAll(r.Body)
	var params map[string]any
	_ = json.Unmarshal(body, &params)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if f.failNext[method] > 0 {
		f.failNext[method]--
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"QUERY_LIMIT_EXCEEDED","error_description":"Too many requests"}`))
		return
	}

	var result any
	switch method {
	case "user.get":
		result = f.users
	case "im.notify":
		msg, _ := params["message"].(string)
		f.notified = append(f.notified, msg)
		result = 1
	case "tasks.task.list":
		result = map[string]any{"tasks": f.tasks}
	case "calendar.event.get":
		result = f.events
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"ERROR_METHOD_NOT_FOUND"}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func (f *fakeBitrix) lastNotification() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.notified) == 0 {
		return ""
	}
	return f.notified[len(f.notified)-1]
}

func (f *fakeBitrix) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeBitrix) failTimes(method string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[method] = n
}

// memStore keeps users and auth codes in memory.
type memStore struct {
	mu    sync.Mutex
	users map[int64]*db.User
	codes []*db.AuthCode
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]*db.User{}}
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) GetUserByTelegramID(_ context.Context, telegramID int64) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) UpsertUser(_ context.Context, p db.UpsertUserParams) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	u, ok := s.users[p.TelegramID]
	if !ok {
		u = &db.User{TelegramID: p.TelegramID, CreatedAt: now}
		s.users[p.TelegramID] = u
	}
	u.TelegramChatID = p.TelegramChatID
	u.BitrixUserID = p.BitrixUserID
	u.Email = p.Email
	u.UpdatedAt = now
	cp := *u
	return &cp, nil
}

func (s *memStore) SetUserTimezone(_ context.Context, telegramID int64, zone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return false, nil
	}
	u.Timezone = &zone
	return true, nil
}

func (s *memStore) ListUsers(context.Context) ([]db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

func (s *memStore) InsertAuthCode(_ context.Context, p db.InsertAuthCodeParams) (*db.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &db.AuthCode{
		ID:           uuid.NewString(),
		TelegramID:   p.TelegramID,
		Email:        p.Email,
		BitrixUserID: p.BitrixUserID,
		CodeHash:     p.CodeHash,
		ExpiresAt:    p.ExpiresAt,
		CreatedAt:    time.Now().UTC(),
	}
	s.codes = append(s.codes, c)
	cp := *c
	return &cp, nil
}

func (s *memStore) GetLatestAuthCode(_ context.Context, telegramID int64) (*db.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.codes) - 1; i >= 0; i-- {
		c := s.codes[i]
		if c.TelegramID == telegramID && c.ConsumedAt == nil {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) ReserveAuthCodeAttempt(_ context.Context, id string, maxAttempts int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.ID == id && c.ConsumedAt == nil && c.Attempts < maxAttempts {
			c.Attempts++
			return c.Attempts, true, nil
		}
	}
	return 0, false, nil
}

func (s *memStore) ConsumeAuthCode(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.ID == id && c.ConsumedAt == nil {
			now := time.Now().UTC()
			c.ConsumedAt = &now
			return true, nil
		}
	}
	return false, nil
}
