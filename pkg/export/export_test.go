package export

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wookiee/ai-assistant/pkg/crm"
)

type fakeLister struct {
	employees []crm.Employee
	err       error
}

func (f *fakeLister) ListEmployees(context.Context) ([]crm.Employee, error) {
	return f.employees, f.err
}

func sampleEmployees() []crm.Employee {
	return []crm.Employee{
		{ID: 1, Name: "Иван", LastName: "Петров", SecondName: "Сергеевич", Email: "ivan@example.com", Position: "Engineer", DepartmentIDs: []int64{3, 7}, Active: true},
		{ID: 2, Name: "Anna", LastName: "Smith", Email: "anna@example.com", Active: true},
	}
}

func TestExport_CreatesAndUpserts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "users.db")
	ctx := context.Background()

	res, err := Export(ctx, &fakeLister{employees: sampleEmployees()}, path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.Stored)
	assert.Equal(t, path, res.Path)

	// second run updates in place
	changed := sampleEmployees()
	changed[0].Position = "Lead"
	changed[0].DepartmentIDs = []int64{9}
	res, err = Export(ctx, &fakeLister{employees: changed[:1]}, path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	row, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "Иван Сергеевич Петров", row.FullName)
	assert.Equal(t, "Lead", row.Position)
	assert.Equal(t, []int64{9}, row.DepartmentIDs)
	assert.True(t, row.Active)
}

func TestExport_ListFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")
	_, err := Export(context.Background(), &fakeLister{err: errors.New("quota")}, path)
	assert.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestStore_KeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	defer store.Close()

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return first }
	_, err = store.UpsertEmployees(ctx, sampleEmployees())
	require.NoError(t, err)

	store.now = func() time.Time { return first.Add(24 * time.Hour) }
	n, err := store.UpsertEmployees(ctx, sampleEmployees()[1:])
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	row, err := store.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01T00:00:00Z", row.CreatedAt)
	assert.Equal(t, "2026-01-02T00:00:00Z", row.UpdatedAt)
	assert.Empty(t, row.DepartmentIDs)
}

func TestStore_EmptyAndMissing(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	defer store.Close()

	n, err := store.UpsertEmployees(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	row, err := store.Get(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestSplitIDs(t *testing.T) {
	ids, err := splitIDs("1,22,333")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 22, 333}, ids)
	assert.Equal(t, "1,22,333", joinIDs(ids))

	_, err = splitIDs("1,x")
	assert.Error(t, err)
}

func TestOpen_DriverError(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(driver, dsn string) (*sql.DB, error) {
		return nil, errors.New("no driver")
	}

	_, err := Open(filepath.Join(t.TempDir(), "users.db"))
	assert.ErrorContains(t, err, "no driver")
}
