package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/wookiee/ai-assistant/internal/config"
	"github.com/wookiee/ai-assistant/pkg/chat"
	"github.com/wookiee/ai-assistant/pkg/crm"
	"github.com/wookiee/ai-assistant/pkg/dedup"
)

// SetupLogging installs the process-wide text logger at level (debug, info, warn, error).
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// NewCRMClient builds the CRM client from cfg.
func NewCRMClient(cfg *config.Config) (*crm.Client, error) {
	client, err := crm.NewClient(crm.Config{
		WebhookURL:    cfg.BitrixWebhook,
		Timeout:       cfg.BitrixTimeout,
		MaxRetries:    cfg.BitrixMaxRetries,
		BackoffFactor: cfg.BitrixBackoffFactor,
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create CRM client: %w", logPrefix, err)
	}
	return client, nil
}

// NewSender builds the chat sender from cfg.
func NewSender(cfg *config.Config) (*chat.TelegramSender, error) {
	sender, err := chat.NewTelegramSender(chat.TelegramConfig{
		Token:    cfg.TelegramToken,
		Endpoint: cfg.TelegramEndpoint,
		Timeout:  cfg.TelegramTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create chat sender: %w", logPrefix, err)
	}
	return sender, nil
}

// NewDedupStore returns a Redis store when REDIS_URL is set, else an in-memory one.
func NewDedupStore(ctx context.Context, cfg *config.Config) (dedup.Store, error) {
	if cfg.RedisURL == "" {
		slog.Info(fmt.Sprintf("%s - Update de-duplication in memory (ttl %s)", logPrefix, cfg.DedupTTL))
		return dedup.NewMemoryStore(cfg.DedupTTL), nil
	}
	store, err := dedup.NewRedisStore(ctx, cfg.RedisURL, cfg.DedupTTL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to Redis: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Update de-duplication in Redis (ttl %s)", logPrefix, cfg.DedupTTL))
	return store, nil
}
