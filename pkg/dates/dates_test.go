package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayBounds(t *testing.T) {
	// 22:30 UTC on the 12th is already the 13th in Moscow (UTC+3)
	now := time.Date(2026, 1, 12, 22, 30, 0, 0, time.UTC)

	start, end, err := DayBounds(now, "Europe/Moscow")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 12, 21, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, 24*time.Hour, end.Sub(start))
	assert.Equal(t, "Europe/Moscow", start.Location().String())
}

func TestDayBounds_UTC(t *testing.T) {
	now := time.Date(2026, 1, 12, 22, 30, 0, 0, time.UTC)
	start, end, err := DayBounds(now, "UTC")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC), end)
}

func TestDayBounds_UnknownZone(t *testing.T) {
	_, _, err := DayBounds(time.Now(), "Mars/Olympus")
	assert.Error(t, err)

	_, err = LoadZone("   ")
	assert.Error(t, err)
}
