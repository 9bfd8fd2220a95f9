package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wookiee/ai-assistant/pkg/crm"
	"github.com/wookiee/ai-assistant/pkg/db"
	"github.com/wookiee/ai-assistant/pkg/digest"
)

type fakeStore struct {
	mu        sync.Mutex
	users     map[int64]*db.User
	codes     []*db.AuthCode
	pingErr   error
	loadErr   error
	upsertErr error
	// afterLoad runs after GetLatestAuthCode returns its snapshot, outside the lock.
	afterLoad func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[int64]*db.User{}}
}

func (s *fakeStore) Ping(ctx context.Context) error { return s.pingErr }

func (s *fakeStore) GetUserByTelegramID(ctx context.Context, telegramID int64) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	u, ok := s.users[telegramID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) UpsertUser(ctx context.Context, p db.UpsertUserParams) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	u := &db.User{TelegramID: p.TelegramID, TelegramChatID: p.TelegramChatID, BitrixUserID: p.BitrixUserID, Email: p.Email}
	if prev, ok := s.users[p.TelegramID]; ok {
		u.Timezone = prev.Timezone
	}
	s.users[p.TelegramID] = u
	cp := *u
	return &cp, nil
}

func (s *fakeStore) SetUserTimezone(ctx context.Context, telegramID int64, zone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return false, nil
	}
	u.Timezone = &zone
	return true, nil
}

func (s *fakeStore) InsertAuthCode(ctx context.Context, p db.InsertAuthCodeParams) (*db.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &db.AuthCode{
		ID:           strings.Repeat("a", len(s.codes)+1),
		TelegramID:   p.TelegramID,
		Email:        p.Email,
		BitrixUserID: p.BitrixUserID,
		CodeHash:     p.CodeHash,
		ExpiresAt:    p.ExpiresAt,
	}
	s.codes = append(s.codes, c)
	return c, nil
}

func (s *fakeStore) GetLatestAuthCode(ctx context.Context, telegramID int64) (*db.AuthCode, error) {
	code := s.latestAuthCode(telegramID)
	if s.afterLoad != nil {
		s.afterLoad()
	}
	return code, nil
}

func (s *fakeStore) latestAuthCode(telegramID int64) *db.AuthCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.codes) - 1; i >= 0; i-- {
		c := s.codes[i]
		if c.TelegramID == telegramID && c.ConsumedAt == nil {
			cp := *c
			return &cp
		}
	}
	return nil
}

func (s *fakeStore) ReserveAuthCodeAttempt(ctx context.Context, id string, maxAttempts int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.ID == id {
			if c.ConsumedAt != nil || c.Attempts >= maxAttempts {
				return 0, false, nil
			}
			c.Attempts++
			return c.Attempts, true, nil
		}
	}
	return 0, false, errors.New("no such code")
}

func (s *fakeStore) ConsumeAuthCode(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.ID == id {
			if c.ConsumedAt != nil {
				return false, nil
			}
			now := time.Now()
			c.ConsumedAt = &now
			return true, nil
		}
	}
	return false, errors.New("no such code")
}

type notification struct {
	userID  int64
	message string
}

type fakeDirectory struct {
	mu        sync.Mutex
	users     map[string]*crm.User
	findErr   error
	notifyErr error
	notified  []notification
}

func (d *fakeDirectory) FindUserByEmail(ctx context.Context, email string) (*crm.User, error) {
	if d.findErr != nil {
		return nil, d.findErr
	}
	return d.users[email], nil
}

func (d *fakeDirectory) NotifyUser(ctx context.Context, userID int64, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.notifyErr != nil {
		return d.notifyErr
	}
	d.notified = append(d.notified, notification{userID: userID, message: message})
	return nil
}

// sentCode extracts the code from the last notification.
func (d *fakeDirectory) sentCode() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.notified) == 0 {
		return ""
	}
	msg := d.notified[len(d.notified)-1].message
	return msg[strings.LastIndex(msg, " ")+1:]
}

type fakeComposer struct {
	digest *digest.Digest
	err    error
	users  []*db.User
}

func (c *fakeComposer) Compose(ctx context.Context, user *db.User) (*digest.Digest, error) {
	c.users = append(c.users, user)
	if c.err != nil {
		return nil, c.err
	}
	return c.digest, nil
}
