package digest

import (
	"strings"
	"time"

	"github.com/wookiee/ai-assistant/pkg/crm"
)

const (
	emptyMark     = "—"
	untitledEvent = "Событие"

	deadlineLayout  = "02.01.2006 15:04"
	eventTimeLayout = "15:04"
)

// Render formats a digest as the plain-text chat message.
func Render(d *Digest) string {
	var b strings.Builder
	b.WriteString("Задачи на сегодня (tz " + d.Timezone + "):\n")
	b.WriteString(renderTasks(d.Today, d.Location))
	b.WriteString("\n\nПросроченные:\n")
	b.WriteString(renderTasks(d.Overdue, d.Location))
	b.WriteString("\n\nСобытия сегодня:\n")
	b.WriteString(renderEvents(d.Events, d))
	return b.String()
}

func renderTasks(tasks []crm.Task, loc *time.Location) string {
	if len(tasks) == 0 {
		return emptyMark
	}
	rows := make([]string, 0, len(tasks))
	for _, t := range tasks {
		deadline := emptyMark
		if t.Deadline != nil {
			deadline = t.Deadline.In(loc).Format(deadlineLayout)
		}
		rows = append(rows, "- "+t.Title+" (до "+deadline+")")
	}
	return strings.Join(rows, "\n")
}

func renderEvents(events []crm.Event, d *Digest) string {
	if len(events) == 0 {
		return emptyMark
	}
	rows := make([]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, "- "+eventTitle(e)+" ("+eventTime(e.From, d)+" - "+eventTime(e.To, d)+")")
	}
	return strings.Join(rows, "\n")
}

// eventTime prints only the clock time for instants inside the digest day.
func eventTime(t *time.Time, d *Digest) string {
	if t == nil {
		return emptyMark
	}
	local := t.In(d.Location)
	if !local.Before(d.Start) && local.Before(d.End) {
		return local.Format(eventTimeLayout)
	}
	return local.Format(deadlineLayout)
}

func eventTitle(e crm.Event) string {
	if strings.TrimSpace(e.Title) == "" {
		return untitledEvent
	}
	return e.Title
}
