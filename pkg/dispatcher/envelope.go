// Package dispatcher routes incoming chat commands to assistant use cases and
// turns their outcome into a reply.
package dispatcher

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Command names understood by the dispatcher.
const (
	CommandStart    = "start"
	CommandCode     = "code"
	CommandToday    = "today"
	CommandTimezone = "timezone"
	CommandHelp     = "help"
)

// Command is a parsed chat command.
type Command struct {
	UpdateID   int    `json:"updateId"`
	TelegramID int64  `json:"telegramId"`
	ChatID     int64  `json:"chatId"`
	Name       string `json:"name"`
	Args       string `json:"args,omitempty"`
}

// Reply is the text to send back to the chat a command came from.
type Reply struct {
	ChatID int64  `json:"chatId"`
	Text   string `json:"text"`
}

// ParseUpdate extracts a command from a chat update. ok is false for updates
// that carry no message, no sender, or text that is not a command.
func ParseUpdate(u *tgbotapi.Update) (*Command, bool) {
	if u == nil || u.Message == nil || u.Message.From == nil || u.Message.Chat == nil {
		return nil, false
	}
	name, args, ok := ParseCommand(u.Message.Text)
	if !ok {
		return nil, false
	}
	return &Command{
		UpdateID:   u.UpdateID,
		TelegramID: u.Message.From.ID,
		ChatID:     u.Message.Chat.ID,
		Name:       name,
		Args:       args,
	}, true
}

// ParseCommand splits "/Name@bot  args" into ("name", "args").
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		rest = head[i:] + " " + rest
		head = head[:i]
	}
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}
