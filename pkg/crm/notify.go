package crm

import "context"

const MethodIMNotify = "im.notify"

// NotifyUser sends a personal notification. Success means Bitrix24 accepted it.
func (c *Client) NotifyUser(ctx context.Context, userID int64, message string) error {
	params := map[string]any{
		"to":      userID,
		"message": message,
	}
	_, err := c.Call(ctx, MethodIMNotify, params)
	return err
}
