// Package dates computes calendar-day windows in a user's time zone.
package dates

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const logPrefix = "dates:dates"

// LoadZone resolves an IANA zone name such as "Europe/Moscow".
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s - empty time zone", logPrefix)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%s - unknown time zone %q: %w", logPrefix, name, err)
	}
	return loc, nil
}

// DayBounds returns local midnight of t's day in zone and the instant 24 hours later.
func DayBounds(t time.Time, zone string) (time.Time, time.Time, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, end := DayBoundsIn(t, loc)
	return start, end, nil
}

// DayBoundsIn is DayBounds for an already resolved location.
func DayBoundsIn(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.Add(24 * time.Hour)
}
