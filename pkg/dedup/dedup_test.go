package dedup

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_FirstSeen(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	first, err := s.FirstSeen(ctx, UpdateKey(1))
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.FirstSeen(ctx, UpdateKey(1))
	require.NoError(t, err)
	assert.False(t, again)

	other, err := s.FirstSeen(ctx, UpdateKey(2))
	require.NoError(t, err)
	assert.True(t, other)
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 13, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	first, _ := s.FirstSeen(ctx, "k")
	require.True(t, first)

	now = now.Add(59 * time.Second)
	again, _ := s.FirstSeen(ctx, "k")
	assert.False(t, again)

	now = now.Add(time.Second)
	expired, _ := s.FirstSeen(ctx, "k")
	assert.True(t, expired)
}

func TestMemoryStore_Purge(t *testing.T) {
	s := NewMemoryStore(time.Second)
	now := time.Date(2026, 1, 13, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < purgeEvery-1; i++ {
		_, _ = s.FirstSeen(ctx, fmt.Sprintf("k%d", i))
	}
	now = now.Add(time.Hour)
	_, _ = s.FirstSeen(ctx, "fresh")
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_ConcurrentSingleWinner(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.FirstSeen(context.Background(), "same"); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, winners)
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "http://not-redis", time.Minute)
	assert.Error(t, err)
}

func TestRedisStore_FirstSeen(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("dedup:dedup_test - REDIS_URL not set, skipping")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, url, time.Minute)
	require.NoError(t, err)
	defer s.Close()

	key := fmt.Sprintf("test:%d", time.Now().UnixNano())
	first, err := s.FirstSeen(ctx, key)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.FirstSeen(ctx, key)
	require.NoError(t, err)
	assert.False(t, again)
}
