package crm

import (
	"context"
	"fmt"
	"log/slog"
)

const usersLogPrefix = "crm:users"

const (
	MethodUserGet = "user.get"

	// maxExportPages stops a runaway pagination loop.
	maxExportPages = 1000
)

// FindUserByEmail returns the first user matching email, or nil when none match.
// Only the first page of user.get is inspected.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	slog.Debug(fmt.Sprintf("%s - FindUserByEmail", usersLogPrefix))

	params := map[string]any{
		"filter": map[string]any{"EMAIL": email},
		"select": []string{"ID", "EMAIL", "NAME", "LAST_NAME"},
	}
	result, err := c.Call(ctx, MethodUserGet, params)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(result)
	if err != nil {
		return nil, fmt.Errorf("%s - %s result: %w", usersLogPrefix, MethodUserGet, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	user, err := decodeUser(items[0])
	if err != nil {
		return nil, fmt.Errorf("%s - %s result: %w", usersLogPrefix, MethodUserGet, err)
	}
	return &user, nil
}

// ListEmployees pages through all active employees using the "start" offset.
func (c *Client) ListEmployees(ctx context.Context) ([]Employee, error) {
	var out []Employee
	start := 0
	for page := 0; page < maxExportPages; page++ {
		params := map[string]any{
			"start": start,
			"filter": map[string]any{
				"ACTIVE":    true,
				"USER_TYPE": "employee",
			},
		}
		env, err := c.post(ctx, MethodUserGet, params)
		if err != nil {
			return nil, err
		}
		items, err := decodeList(env.Result)
		if err != nil {
			return nil, fmt.Errorf("%s - %s page %d: %w", usersLogPrefix, MethodUserGet, page, err)
		}
		for _, item := range items {
			e, err := decodeEmployee(item)
			if err != nil {
				return nil, fmt.Errorf("%s - %s page %d: %w", usersLogPrefix, MethodUserGet, page, err)
			}
			out = append(out, e)
		}
		slog.Info(fmt.Sprintf("%s - Fetched %d employees", usersLogPrefix, len(out)))

		if len(items) == 0 || env.Next == nil {
			return out, nil
		}
		if env.Total != nil && len(out) >= *env.Total {
			return out, nil
		}
		start = *env.Next
	}
	return nil, fmt.Errorf("%s - %s exceeded %d pages", usersLogPrefix, MethodUserGet, maxExportPages)
}

// CheckWebhook performs one user.get call and returns the size of the first page.
func (c *Client) CheckWebhook(ctx context.Context) (int, error) {
	params := map[string]any{
		"start":  0,
		"filter": map[string]any{"ACTIVE": true},
	}
	result, err := c.Call(ctx, MethodUserGet, params)
	if err != nil {
		return 0, err
	}
	items, err := decodeList(result)
	if err != nil {
		return 0, fmt.Errorf("%s - %s result: %w", usersLogPrefix, MethodUserGet, err)
	}
	return len(items), nil
}
