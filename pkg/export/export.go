package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wookiee/ai-assistant/pkg/crm"
)

const exportLogPrefix = "export:export"

// EmployeeLister pages through the CRM employee directory.
type EmployeeLister interface {
	ListEmployees(ctx context.Context) ([]crm.Employee, error)
}

// Result summarizes one export.
type Result struct {
	Path     string
	Fetched  int
	Stored   int
	Duration time.Duration
}

// Export fetches every active employee and upserts them into the SQLite file at path.
func Export(ctx context.Context, lister EmployeeLister, path string) (*Result, error) {
	if path == "" {
		path = DefaultPath
	}
	started := time.Now()

	employees, err := lister.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s - list employees: %w", exportLogPrefix, err)
	}

	store, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if _, err := store.UpsertEmployees(ctx, employees); err != nil {
		return nil, err
	}
	total, err := store.Count(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Path: path, Fetched: len(employees), Stored: total, Duration: time.Since(started)}
	slog.Info(fmt.Sprintf("%s - Exported %d employees to %s (%d stored)", exportLogPrefix, res.Fetched, path, total))
	return res, nil
}
