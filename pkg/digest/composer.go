// Package digest builds the daily task and calendar summary for a linked user
// and delivers it to every user in scheduled batches.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wookiee/ai-assistant/pkg/crm"
	"github.com/wookiee/ai-assistant/pkg/dates"
	"github.com/wookiee/ai-assistant/pkg/db"
)

const logPrefix = "digest:composer"

// DefaultTimezone is used for users without a stored zone when none is configured.
const DefaultTimezone = "Europe/Moscow"

// CRM is the subset of the CRM client the composer reads from.
type CRM interface {
	ListTasks(ctx context.Context, responsibleID int64, window crm.DeadlineWindow) ([]crm.Task, error)
	ListEvents(ctx context.Context, userID int64, from, to time.Time) ([]crm.Event, error)
}

// Cache receives a copy of every fetched task and event.
type Cache interface {
	UpsertTasksCache(ctx context.Context, tasks []db.CachedTask) error
	UpsertEventsCache(ctx context.Context, events []db.CachedEvent) error
	UpsertSyncState(ctx context.Context, bitrixUserID int64, entityType string, at time.Time) error
}

// Digest is one user's summary for one local calendar day.
type Digest struct {
	Timezone string
	Location *time.Location
	Start    time.Time
	End      time.Time
	Today    []crm.Task
	Overdue  []crm.Task
	Events   []crm.Event
}

// Composer fetches and assembles digests.
type Composer struct {
	crm             CRM
	cache           Cache
	defaultTimezone string
	now             func() time.Time
}

// NewComposer creates a Composer. cache may be nil to skip write-through.
func NewComposer(client CRM, cache Cache, defaultTimezone string) *Composer {
	if defaultTimezone == "" {
		defaultTimezone = DefaultTimezone
	}
	return &Composer{crm: client, cache: cache, defaultTimezone: defaultTimezone, now: time.Now}
}

// Compose builds the digest for user's current local day. The three CRM reads
// run concurrently; any of them failing fails the digest. Cache writes are
// best-effort and only logged.
func (c *Composer) Compose(ctx context.Context, user *db.User) (*Digest, error) {
	tz := user.TimezoneOr(c.defaultTimezone)
	loc, err := dates.LoadZone(tz)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - user %d has invalid timezone %q, using %s", logPrefix, user.TelegramID, tz, c.defaultTimezone))
		tz = c.defaultTimezone
		if loc, err = dates.LoadZone(tz); err != nil {
			return nil, err
		}
	}
	start, end := dates.DayBoundsIn(c.now(), loc)
	d := &Digest{Timezone: tz, Location: loc, Start: start, End: end}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tasks, err := c.crm.ListTasks(gctx, user.BitrixUserID, crm.Between(start, end))
		if err != nil {
			return fmt.Errorf("%s - today's tasks: %w", logPrefix, err)
		}
		d.Today = tasks
		return nil
	})
	g.Go(func() error {
		tasks, err := c.crm.ListTasks(gctx, user.BitrixUserID, crm.Before(start))
		if err != nil {
			return fmt.Errorf("%s - overdue tasks: %w", logPrefix, err)
		}
		d.Overdue = tasks
		return nil
	})
	g.Go(func() error {
		// the calendar API treats "to" as exclusive
		events, err := c.crm.ListEvents(gctx, user.BitrixUserID, start, end.Add(time.Second))
		if err != nil {
			return fmt.Errorf("%s - events: %w", logPrefix, err)
		}
		d.Events = events
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.writeCache(ctx, user.BitrixUserID, d)
	return d, nil
}

func (c *Composer) writeCache(ctx context.Context, bitrixUserID int64, d *Digest) {
	if c.cache == nil {
		return
	}
	syncedAt := c.now().UTC()

	tasks := cachedTasks(bitrixUserID, d.Today, d.Overdue)
	if err := c.cache.UpsertTasksCache(ctx, tasks); err != nil {
		slog.Warn(fmt.Sprintf("%s - tasks cache for bitrix user %d: %v", logPrefix, bitrixUserID, err))
	} else if err := c.cache.UpsertSyncState(ctx, bitrixUserID, db.EntityTasks, syncedAt); err != nil {
		slog.Warn(fmt.Sprintf("%s - tasks sync state for bitrix user %d: %v", logPrefix, bitrixUserID, err))
	}

	events := cachedEvents(bitrixUserID, d.Events)
	if err := c.cache.UpsertEventsCache(ctx, events); err != nil {
		slog.Warn(fmt.Sprintf("%s - events cache for bitrix user %d: %v", logPrefix, bitrixUserID, err))
	} else if err := c.cache.UpsertSyncState(ctx, bitrixUserID, db.EntityEvents, syncedAt); err != nil {
		slog.Warn(fmt.Sprintf("%s - events sync state for bitrix user %d: %v", logPrefix, bitrixUserID, err))
	}
}

// cachedTasks converts tasks to cache rows, keeping the first occurrence of each id.
func cachedTasks(bitrixUserID int64, groups ...[]crm.Task) []db.CachedTask {
	seen := make(map[int64]bool)
	var out []db.CachedTask
	for _, group := range groups {
		for _, t := range group {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			out = append(out, db.CachedTask{
				BitrixTaskID: t.ID,
				BitrixUserID: bitrixUserID,
				Title:        t.Title,
				Status:       t.Status,
				Deadline:     t.Deadline,
				UpdatedAt:    t.UpdatedAt(),
				RawPayload:   t.Raw,
			})
		}
	}
	return out
}

func cachedEvents(bitrixUserID int64, events []crm.Event) []db.CachedEvent {
	out := make([]db.CachedEvent, 0, len(events))
	for _, e := range events {
		out = append(out, db.CachedEvent{
			BitrixEventID: e.ID,
			BitrixUserID:  bitrixUserID,
			Title:         eventTitle(e),
			StartAt:       e.From,
			EndAt:         e.To,
			UpdatedAt:     e.CreatedAt,
			RawPayload:    e.Raw,
		})
	}
	return out
}
