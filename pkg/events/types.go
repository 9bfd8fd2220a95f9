// Package events defines the assistant's domain events and the publishers that
// deliver them.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeUserLinked = "user.linked"
	TypeDigestSent = "digest.sent"
)

// Event is emitted after a state change that other services may care about.
type Event struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	TelegramID   int64          `json:"telegramId"`
	BitrixUserID int64          `json:"bitrixUserId"`
	Timestamp    string         `json:"timestamp"`
	Details      map[string]any `json:"details,omitempty"`
}

// NewEvent builds an event with a fresh id and the current UTC timestamp.
func NewEvent(eventType string, telegramID, bitrixUserID int64, details map[string]any) *Event {
	return &Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		TelegramID:   telegramID,
		BitrixUserID: bitrixUserID,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Details:      details,
	}
}
