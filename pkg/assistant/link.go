package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wookiee/ai-assistant/pkg/db"
	"github.com/wookiee/ai-assistant/pkg/events"
	"github.com/wookiee/ai-assistant/pkg/otp"
)

const linkLogPrefix = "assistant:link"

// StartLinkInput is the input for StartLink.
type StartLinkInput struct {
	TelegramID int64
	ChatID     int64
	Email      string
}

// StartLinkOutput is the result of StartLink.
type StartLinkOutput struct {
	BitrixUserID int64     `json:"bitrixUserId"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// StartLink looks the email up in the CRM and delivers a one-time code to that
// CRM user's notifications. The code is stored only after delivery succeeded.
func (a *Assistant) StartLink(ctx context.Context, input *StartLinkInput) (*StartLinkOutput, error) {
	if e := a.requireStore(); e != nil {
		return nil, e
	}
	email := strings.TrimSpace(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, NewAssistantError(CodeInvalidArgument, "email is required")
	}

	existing, err := a.store.GetUserByTelegramID(ctx, input.TelegramID)
	if err != nil {
		return nil, wrapError(CodeInternal, "failed to load user", err)
	}
	if existing != nil {
		return nil, NewAssistantError(CodeAlreadyLinked, "chat account is already linked")
	}

	crmUser, err := a.directory.FindUserByEmail(ctx, email)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - CRM lookup for telegram %d failed: %v", linkLogPrefix, input.TelegramID, err))
		return nil, wrapError(CodeCRMUnavailable, "CRM lookup failed", err)
	}
	if crmUser == nil {
		return nil, NewAssistantError(CodeCRMUserNotFound, "no CRM user with this email")
	}

	code, err := otp.Generate(a.config.OTPLength)
	if err != nil {
		return nil, wrapError(CodeInternal, "failed to generate code", err)
	}
	if err := a.directory.NotifyUser(ctx, crmUser.ID, "Код подтверждения Telegram: "+code); err != nil {
		slog.Error(fmt.Sprintf("%s - im.notify to bitrix user %d failed: %v", linkLogPrefix, crmUser.ID, err))
		return nil, wrapError(CodeNotifyFailed, "failed to deliver code", err)
	}

	expiresAt := otp.ExpiresAt(a.now(), a.config.OTPTTL)
	_, err = a.store.InsertAuthCode(ctx, db.InsertAuthCodeParams{
		TelegramID:   input.TelegramID,
		Email:        email,
		BitrixUserID: crmUser.ID,
		CodeHash:     otp.Hash(code),
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		return nil, wrapError(CodeInternal, "failed to store code", err)
	}

	slog.Info(fmt.Sprintf("%s - Code sent to bitrix user %d for telegram %d", linkLogPrefix, crmUser.ID, input.TelegramID))
	return &StartLinkOutput{BitrixUserID: crmUser.ID, ExpiresAt: expiresAt}, nil
}

// ConfirmCodeInput is the input for ConfirmCode.
type ConfirmCodeInput struct {
	TelegramID int64
	ChatID     int64
	Code       string
}

// ConfirmCode redeems the newest pending code and links the chat account.
func (a *Assistant) ConfirmCode(ctx context.Context, input *ConfirmCodeInput) (*db.User, error) {
	if e := a.requireStore(); e != nil {
		return nil, e
	}
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, NewAssistantError(CodeInvalidArgument, "code is required")
	}

	pending, err := a.store.GetLatestAuthCode(ctx, input.TelegramID)
	if err != nil {
		return nil, wrapError(CodeInternal, "failed to load code", err)
	}
	if pending == nil {
		return nil, NewAssistantError(CodeNoPendingCode, "no pending code")
	}
	if otp.Expired(pending.ExpiresAt, a.now()) {
		return nil, NewAssistantError(CodeCodeExpired, "code expired")
	}
	// the attempt is counted before the code is compared, so concurrent guesses
	// cannot all see the same stale count
	attempts, ok, err := a.store.ReserveAuthCodeAttempt(ctx, pending.ID, a.config.OTPMaxAttempts)
	if err != nil {
		return nil, wrapError(CodeInternal, "failed to record attempt", err)
	}
	if !ok {
		return nil, NewAssistantError(CodeTooManyAttempts, "too many attempts")
	}
	if !otp.Verify(code, pending.CodeHash) {
		slog.Info(fmt.Sprintf("%s - Wrong code for telegram %d (attempt %d/%d)", linkLogPrefix, input.TelegramID, attempts, a.config.OTPMaxAttempts))
		return nil, &AssistantError{
			Code:    CodeCodeInvalid,
			Message: "code does not match",
			Details: map[string]int{"attemptsLeft": max(a.config.OTPMaxAttempts-attempts, 0)},
		}
	}

	// the CRM account may have changed since the code was issued
	crmUser, err := a.directory.FindUserByEmail(ctx, pending.Email)
	if err != nil {
		return nil, wrapError(CodeCRMUnavailable, "CRM lookup failed", err)
	}
	if crmUser == nil {
		return nil, NewAssistantError(CodeCRMUserNotFound, "CRM user no longer exists")
	}

	consumed, err := a.store.ConsumeAuthCode(ctx, pending.ID)
	if err != nil {
		return nil, wrapError(CodeInternal, "failed to consume code", err)
	}
	if !consumed {
		return nil, NewAssistantError(CodeNoPendingCode, "code already used")
	}

	user, err := a.store.UpsertUser(ctx, db.UpsertUserParams{
		TelegramID:     input.TelegramID,
		TelegramChatID: input.ChatID,
		BitrixUserID:   crmUser.ID,
		Email:          pending.Email,
	})
	if err != nil {
		return nil, wrapError(CodeInternal, "failed to save user", err)
	}

	ev := events.NewEvent(events.TypeUserLinked, user.TelegramID, user.BitrixUserID, map[string]any{"email": user.Email})
	if err := a.publisher.Publish(ctx, ev); err != nil {
		slog.Warn(fmt.Sprintf("%s - user.linked event for %d not published: %v", linkLogPrefix, user.TelegramID, err))
	}

	slog.Info(fmt.Sprintf("%s - Telegram %d linked to bitrix user %d", linkLogPrefix, user.TelegramID, user.BitrixUserID))
	return user, nil
}
