package assistant

import (
	"context"
	"time"
)

// HealthOutput is the result of Health.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks lists individual dependency checks.
type HealthChecks struct {
	Database bool `json:"database"`
}

// Health checks the assistant's dependencies.
func (a *Assistant) Health(ctx context.Context) *HealthOutput {
	dbOk := a.store != nil && a.store.Ping(ctx) == nil

	status := "ok"
	if !dbOk {
		status = "unhealthy"
	}

	return &HealthOutput{
		Status: status,
		Checks: HealthChecks{
			Database: dbOk,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
