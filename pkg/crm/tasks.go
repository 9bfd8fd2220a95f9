package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const tasksLogPrefix = "crm:tasks"

const MethodTaskList = "tasks.task.list"

// DeadlineWindow bounds the DEADLINE filter. A nil bound is omitted from the request.
type DeadlineWindow struct {
	From *time.Time
	To   *time.Time
}

// Between returns a window with both bounds set.
func Between(from, to time.Time) DeadlineWindow {
	return DeadlineWindow{From: &from, To: &to}
}

// Before returns a window with only the upper bound set.
func Before(to time.Time) DeadlineWindow {
	return DeadlineWindow{To: &to}
}

var taskSelect = []string{
	"ID",
	"TITLE",
	"STATUS",
	"DEADLINE",
	"RESPONSIBLE_ID",
	"CREATED_DATE",
	"CHANGED_DATE",
}

// taskListParams builds the tasks.task.list request body.
func taskListParams(responsibleID int64, window DeadlineWindow) map[string]any {
	filter := map[string]any{"RESPONSIBLE_ID": responsibleID}
	if window.From != nil {
		filter[">=DEADLINE"] = window.From.Format(time.RFC3339)
	}
	if window.To != nil {
		filter["<=DEADLINE"] = window.To.Format(time.RFC3339)
	}
	return map[string]any{
		"filter": filter,
		"select": taskSelect,
	}
}

// ListTasks returns the tasks of a responsible user in remote order.
func (c *Client) ListTasks(ctx context.Context, responsibleID int64, window DeadlineWindow) ([]Task, error) {
	result, err := c.Call(ctx, MethodTaskList, taskListParams(responsibleID, window))
	if err != nil {
		return nil, err
	}
	items, err := taskItems(result)
	if err != nil {
		return nil, fmt.Errorf("%s - %s result: %w", tasksLogPrefix, MethodTaskList, err)
	}
	tasks := make([]Task, 0, len(items))
	for _, item := range items {
		t, err := decodeTask(item)
		if err != nil {
			return nil, fmt.Errorf("%s - %s result: %w", tasksLogPrefix, MethodTaskList, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// taskItems unwraps {"tasks": [...]}. An empty result may come back as [] instead.
func taskItems(result json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return decodeList(trimmed)
	}
	var wrapper struct {
		Tasks json.RawMessage `json:"tasks"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, err
	}
	return decodeList(wrapper.Tasks)
}
