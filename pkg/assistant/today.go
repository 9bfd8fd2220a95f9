package assistant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wookiee/ai-assistant/pkg/dates"
	"github.com/wookiee/ai-assistant/pkg/db"
	"github.com/wookiee/ai-assistant/pkg/digest"
)

const todayLogPrefix = "assistant:today"

// Today returns the rendered digest for a linked chat account.
func (a *Assistant) Today(ctx context.Context, telegramID int64) (string, error) {
	user, err := a.linkedUser(ctx, telegramID)
	if err != nil {
		return "", err
	}
	d, err := a.composer.Compose(ctx, user)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - digest for %d failed: %v", todayLogPrefix, telegramID, err))
		return "", wrapError(CodeCRMUnavailable, "failed to build digest", err)
	}
	return digest.Render(d), nil
}

// SetTimezone stores the user's IANA time zone and returns its canonical name.
func (a *Assistant) SetTimezone(ctx context.Context, telegramID int64, zone string) (string, error) {
	loc, err := dates.LoadZone(zone)
	if err != nil {
		return "", NewAssistantError(CodeInvalidTimezone, fmt.Sprintf("unknown time zone %q", zone))
	}
	if _, err := a.linkedUser(ctx, telegramID); err != nil {
		return "", err
	}
	ok, err := a.store.SetUserTimezone(ctx, telegramID, loc.String())
	if err != nil {
		return "", wrapError(CodeInternal, "failed to save time zone", err)
	}
	if !ok {
		return "", NewAssistantError(CodeNotLinked, "chat account is not linked")
	}
	return loc.String(), nil
}

// Timezone returns the zone used for the user's digests.
func (a *Assistant) Timezone(ctx context.Context, telegramID int64) (string, error) {
	user, err := a.linkedUser(ctx, telegramID)
	if err != nil {
		return "", err
	}
	return user.TimezoneOr(a.config.DefaultTimezone), nil
}

func (a *Assistant) linkedUser(ctx context.Context, telegramID int64) (*db.User, error) {
	if e := a.requireStore(); e != nil {
		return nil, e
	}
	user, err := a.store.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, wrapError(CodeInternal, "failed to load user", err)
	}
	if user == nil {
		return nil, NewAssistantError(CodeNotLinked, "chat account is not linked")
	}
	return user, nil
}
