// Package assistant implements the chat assistant's use cases: linking a chat
// account to a CRM user with a one-time code, the on-demand digest and user
// preferences. Failures that users should see are returned as *AssistantError.
package assistant

import (
	"context"
	"time"

	"github.com/wookiee/ai-assistant/pkg/crm"
	"github.com/wookiee/ai-assistant/pkg/db"
	"github.com/wookiee/ai-assistant/pkg/digest"
	"github.com/wookiee/ai-assistant/pkg/events"
	"github.com/wookiee/ai-assistant/pkg/otp"
)

const (
	defaultMaxAttempts = 5
)

// Config holds assistant configuration.
type Config struct {
	OTPLength       int
	OTPTTL          time.Duration
	OTPMaxAttempts  int
	DefaultTimezone string
}

// DefaultConfig returns the default assistant configuration.
func DefaultConfig() Config {
	return Config{
		OTPLength:       otp.DefaultLength,
		OTPTTL:          otp.DefaultTTL,
		OTPMaxAttempts:  defaultMaxAttempts,
		DefaultTimezone: digest.DefaultTimezone,
	}
}

// Store is the persistence the assistant needs.
type Store interface {
	Ping(ctx context.Context) error
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*db.User, error)
	UpsertUser(ctx context.Context, params db.UpsertUserParams) (*db.User, error)
	SetUserTimezone(ctx context.Context, telegramID int64, zone string) (bool, error)
	InsertAuthCode(ctx context.Context, params db.InsertAuthCodeParams) (*db.AuthCode, error)
	GetLatestAuthCode(ctx context.Context, telegramID int64) (*db.AuthCode, error)
	ReserveAuthCodeAttempt(ctx context.Context, id string, maxAttempts int) (int, bool, error)
	ConsumeAuthCode(ctx context.Context, id string) (bool, error)
}

// Directory is the CRM lookup and notification surface used for linking.
type Directory interface {
	FindUserByEmail(ctx context.Context, email string) (*crm.User, error)
	NotifyUser(ctx context.Context, userID int64, message string) error
}

// Composer builds a user's digest.
type Composer interface {
	Compose(ctx context.Context, user *db.User) (*digest.Digest, error)
}

// Assistant is the main service containing all use-case methods.
type Assistant struct {
	store     Store
	directory Directory
	composer  Composer
	publisher events.EventPublisher
	config    Config
	now       func() time.Time
}

// NewAssistantParams holds parameters for NewAssistant.
type NewAssistantParams struct {
	Store     Store
	Directory Directory
	Composer  Composer
	Publisher events.EventPublisher
	Config    Config
}

// NewAssistant creates a new Assistant instance.
func NewAssistant(params NewAssistantParams) *Assistant {
	cfg := params.Config
	def := DefaultConfig()
	if cfg.OTPLength <= 0 {
		cfg.OTPLength = def.OTPLength
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = def.OTPTTL
	}
	if cfg.OTPMaxAttempts <= 0 {
		cfg.OTPMaxAttempts = def.OTPMaxAttempts
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = def.DefaultTimezone
	}

	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}

	return &Assistant{
		store:     params.Store,
		directory: params.Directory,
		composer:  params.Composer,
		publisher: pub,
		config:    cfg,
		now:       time.Now,
	}
}

// requireStore returns an error if the store is not configured (e.g. in tests with nil store).
func (a *Assistant) requireStore() *AssistantError {
	if a.store == nil {
		return NewAssistantError(CodeInternal, "store not configured")
	}
	return nil
}
