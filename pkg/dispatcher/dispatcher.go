package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wookiee/ai-assistant/pkg/assistant"
	"github.com/wookiee/ai-assistant/pkg/db"
)

const logPrefix = "dispatcher:dispatch"

// Assistant is the set of use cases reachable from chat.
type Assistant interface {
	StartLink(ctx context.Context, input *assistant.StartLinkInput) (*assistant.StartLinkOutput, error)
	ConfirmCode(ctx context.Context, input *assistant.ConfirmCodeInput) (*db.User, error)
	Today(ctx context.Context, telegramID int64) (string, error)
	SetTimezone(ctx context.Context, telegramID int64, zone string) (string, error)
	Timezone(ctx context.Context, telegramID int64) (string, error)
}

// Dispatcher routes chat commands to assistant methods.
type Dispatcher struct {
	assistant Assistant
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(a Assistant) *Dispatcher {
	return &Dispatcher{assistant: a}
}

// Dispatch runs a command and returns the reply for its chat.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *Command) *Reply {
	slog.Debug(fmt.Sprintf("%s - command=%s telegram=%d update=%d", logPrefix, cmd.Name, cmd.TelegramID, cmd.UpdateID))

	var text string
	switch cmd.Name {
	case CommandStart:
		text = d.handleStart(ctx, cmd)
	case CommandCode:
		text = d.handleCode(ctx, cmd)
	case CommandToday:
		text = d.handleToday(ctx, cmd)
	case CommandTimezone:
		text = d.handleTimezone(ctx, cmd)
	default:
		text = msgHelp
	}
	return &Reply{ChatID: cmd.ChatID, Text: text}
}

func (d *Dispatcher) handleStart(ctx context.Context, cmd *Command) string {
	if cmd.Args == "" {
		return msgStartUsage
	}
	_, err := d.assistant.StartLink(ctx, &assistant.StartLinkInput{
		TelegramID: cmd.TelegramID,
		ChatID:     cmd.ChatID,
		Email:      cmd.Args,
	})
	if err != nil {
		return errorText(cmd, err)
	}
	return msgCodeSent
}

func (d *Dispatcher) handleCode(ctx context.Context, cmd *Command) string {
	if cmd.Args == "" {
		return msgCodeUsage
	}
	_, err := d.assistant.ConfirmCode(ctx, &assistant.ConfirmCodeInput{
		TelegramID: cmd.TelegramID,
		ChatID:     cmd.ChatID,
		Code:       cmd.Args,
	})
	if err != nil {
		return errorText(cmd, err)
	}
	return msgLinked
}

func (d *Dispatcher) handleToday(ctx context.Context, cmd *Command) string {
	text, err := d.assistant.Today(ctx, cmd.TelegramID)
	if err != nil {
		return errorText(cmd, err)
	}
	return text
}

func (d *Dispatcher) handleTimezone(ctx context.Context, cmd *Command) string {
	if cmd.Args == "" {
		zone, err := d.assistant.Timezone(ctx, cmd.TelegramID)
		if err != nil {
			return errorText(cmd, err)
		}
		return fmt.Sprintf(msgTimezoneShow, zone)
	}
	zone, err := d.assistant.SetTimezone(ctx, cmd.TelegramID, cmd.Args)
	if err != nil {
		return errorText(cmd, err)
	}
	return fmt.Sprintf(msgTimezoneSet, zone)
}

// --- helpers ---

func errorText(cmd *Command, err error) string {
	code := assistant.ErrorCode(err)
	if code == assistant.CodeInternal {
		slog.Error(fmt.Sprintf("%s - /%s for telegram %d failed: %v", logPrefix, cmd.Name, cmd.TelegramID, err))
		return msgInternalError
	}
	slog.Info(fmt.Sprintf("%s - /%s for telegram %d: %s", logPrefix, cmd.Name, cmd.TelegramID, code))
	if msg, ok := commandErrorMessages[cmd.Name][code]; ok {
		return msg
	}
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return msgInternalError
}
