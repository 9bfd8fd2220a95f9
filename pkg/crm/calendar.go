package crm

import (
	"context"
	"fmt"
	"time"
)

const calendarLogPrefix = "crm:calendar"

const MethodCalendarEventGet = "calendar.event.get"

// ListEvents returns the user's calendar events in [from, to), declined invitations excluded.
func (c *Client) ListEvents(ctx context.Context, userID int64, from, to time.Time) ([]Event, error) {
	params := map[string]any{
		"type":         "user",
		"ownerId":      userID,
		"from":         from.Format(time.RFC3339),
		"to":           to.Format(time.RFC3339),
		"skipDeclined": "Y",
	}
	result, err := c.Call(ctx, MethodCalendarEventGet, params)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(result)
	if err != nil {
		return nil, fmt.Errorf("%s - %s result: %w", calendarLogPrefix, MethodCalendarEventGet, err)
	}
	events := make([]Event, 0, len(items))
	for _, item := range items {
		ev, err := decodeEvent(item)
		if err != nil {
			return nil, fmt.Errorf("%s - %s result: %w", calendarLogPrefix, MethodCalendarEventGet, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
