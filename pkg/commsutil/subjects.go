package commsutil

import "strings"

// Default COMMS subjects.
const (
	SubjectJobs   = "assistant.jobs.v1"
	SubjectEvents = "assistant.events"
)

// BuildEventSubject builds the granular subject for one event type, e.g.
// "assistant.events.user.linked". Wildcard and whitespace characters in
// eventType are replaced so a bad type cannot widen a subscription.
func BuildEventSubject(base, eventType string) string {
	if base == "" {
		base = SubjectEvents
	}
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, strings.Trim(eventType, "."))
	if safe == "" {
		return base
	}
	return base + "." + safe
}
