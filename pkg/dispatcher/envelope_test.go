package dispatcher

import (
	"encoding/json"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantArgs string
		wantOk   bool
	}{
		{"/start ivan@example.com", "start", "ivan@example.com", true},
		{"/START   ivan@example.com  ", "start", "ivan@example.com", true},
		{"/start@WorkAssistantBot ivan@example.com", "start", "ivan@example.com", true},
		{"/today", "today", "", true},
		{"/Code@bot", "code", "", true},
		{"/code\n123456", "code", "123456", true},
		{"  /help  ", "help", "", true},
		{"hello", "", "", false},
		{"", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}

	for _, tt := range tests {
		name, args, ok := ParseCommand(tt.text)
		if ok != tt.wantOk || name != tt.wantName || args != tt.wantArgs {
			t.Errorf("dispatcher:envelope_test - ParseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.text, name, args, ok, tt.wantName, tt.wantArgs, tt.wantOk)
		}
	}
}

func TestParseUpdate_FromWebhookJSON(t *testing.T) {
	raw := `{
		"update_id": 1001,
		"message": {
			"message_id": 7,
			"date": 1768300000,
			"from": {"id": 42, "is_bot": false, "first_name": "Ivan"},
			"chat": {"id": 4242, "type": "private"},
			"text": "/code 123456",
			"entities": [{"type": "bot_command", "offset": 0, "length": 5}]
		}
	}`
	var u tgbotapi.Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("dispatcher:envelope_test - unmarshal update: %v", err)
	}

	cmd, ok := ParseUpdate(&u)
	if !ok {
		t.Fatal("dispatcher:envelope_test - expected a command")
	}
	want := Command{UpdateID: 1001, TelegramID: 42, ChatID: 4242, Name: CommandCode, Args: "123456"}
	if *cmd != want {
		t.Errorf("dispatcher:envelope_test - got %+v, want %+v", *cmd, want)
	}
}

func TestParseUpdate_Ignored(t *testing.T) {
	updates := map[string]*tgbotapi.Update{
		"nil update":    nil,
		"no message":    {UpdateID: 1},
		"no sender":     {UpdateID: 2, Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "/today"}},
		"no chat":       {UpdateID: 3, Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Text: "/today"}},
		"plain text":    {UpdateID: 4, Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1}, Text: "hi"}},
		"edited":        {UpdateID: 5, EditedMessage: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1}, Text: "/today"}},
		"empty message": {UpdateID: 6, Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1}}},
	}
	for name, u := range updates {
		if cmd, ok := ParseUpdate(u); ok {
			t.Errorf("dispatcher:envelope_test - %s: expected ignore, got %+v", name, cmd)
		}
	}
}
