package chat

import (
	"context"
	"sync"
)

// SentMessage is a message captured by RecordingSender.
type SentMessage struct {
	ChatID int64
	Text   string
}

// RecordingSender keeps messages in memory instead of delivering them. It backs
// dry runs of the digest jobs and tests. Err, when set, is returned for chats
// listed in FailFor (or for every chat when FailFor is empty).
type RecordingSender struct {
	mu      sync.Mutex
	sent    []SentMessage
	Err     error
	FailFor map[int64]bool
}

// Send implements Sender.
func (r *RecordingSender) Send(_ context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil && (len(r.FailFor) == 0 || r.FailFor[chatID]) {
		return r.Err
	}
	r.sent = append(r.sent, SentMessage{ChatID: chatID, Text: text})
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *RecordingSender) Sent() []SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentMessage(nil), r.sent...)
}
