// Package chat delivers outbound messages to users through the Telegram Bot API.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const logPrefix = "chat:telegram"

const (
	// DefaultEndpoint is the Bot API URL template: token, then method.
	DefaultEndpoint = tgbotapi.APIEndpoint

	// MaxMessageLength is the Bot API limit for one text message, in characters.
	MaxMessageLength = 4096
	DefaultTimeout   = 10 * time.Second

	maxRetryAfter = 30 * time.Second
)

// Sender delivers a plain-text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TelegramConfig holds Bot API settings.
type TelegramConfig struct {
	Token    string
	Endpoint string
	// Timeout bounds one Bot API request. The library does not take a context, so
	// this is the longest a cancelled caller can wait on a single message part.
	Timeout time.Duration
}

// TelegramSender is a Sender backed by the Bot API.
type TelegramSender struct {
	bot     *tgbotapi.BotAPI
	timeout time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewTelegramSender builds a sender without calling getMe, so startup does not
// depend on Telegram being reachable.
func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%s - bot token is required", logPrefix)
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if strings.Count(endpoint, "%s") != 2 {
		return nil, fmt.Errorf("%s - endpoint must contain two %%s placeholders (token, method)", logPrefix)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	bot := &tgbotapi.BotAPI{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(endpoint)
	return &TelegramSender{bot: bot, timeout: timeout, sleep: sleepContext}, nil
}

// Timeout returns the per-request Bot API timeout.
func (s *TelegramSender) Timeout() time.Duration {
	return s.timeout
}

// Send delivers text, splitting it into several messages when it exceeds the
// Bot API limit. A 429 answer is retried once after the advertised delay.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	for i, part := range SplitMessage(text, MaxMessageLength) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sendPart(ctx, chatID, part); err != nil {
			return fmt.Errorf("%s - send part %d to chat %d: %w", logPrefix, i+1, chatID, err)
		}
	}
	return nil
}

func (s *TelegramSender) sendPart(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true

	_, err := s.bot.Send(msg)
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests && apiErr.RetryAfter > 0 {
		wait := time.Duration(apiErr.RetryAfter) * time.Second
		if wait > maxRetryAfter {
			return err
		}
		slog.Warn(fmt.Sprintf("%s - rate limited by Telegram, retry in %s", logPrefix, wait))
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
		_, err = s.bot.Send(msg)
	}
	return err
}

// SplitMessage cuts text into chunks of at most limit characters, preferring line breaks.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
