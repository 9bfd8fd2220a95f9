// Package dedup remembers chat update ids so webhook redeliveries are processed once.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const logPrefix = "dedup:dedup"

// DefaultTTL is how long a seen key is remembered.
const DefaultTTL = 24 * time.Hour

// Store records keys. FirstSeen marks key and reports whether this call was the
// first to see it within the TTL.
type Store interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
	Close() error
}

// UpdateKey is the store key for a chat update id.
func UpdateKey(updateID int) string {
	return fmt.Sprintf("update:%d", updateID)
}

// MemoryStore is a process-local Store. Expired keys are purged lazily.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	seen  map[string]time.Time
	now   func() time.Time
	calls int
}

// NewMemoryStore creates a MemoryStore. A non-positive ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

// purgeEvery bounds how often FirstSeen sweeps the map.
const purgeEvery = 256

// FirstSeen implements Store.
func (s *MemoryStore) FirstSeen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.calls++
	if s.calls%purgeEvery == 0 {
		for k, exp := range s.seen {
			if !now.Before(exp) {
				delete(s.seen, k)
			}
		}
	}

	if exp, ok := s.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.seen[key] = now.Add(s.ttl)
	return true, nil
}

// Len returns the number of remembered keys, expired ones included until purged.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
