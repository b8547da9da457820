package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendgrid/export-profiles/internal/domain"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *string:
			*d = r.values[i].(string)
		case *bool:
			*d = r.values[i].(bool)
		case *[]byte:
			*d = r.values[i].([]byte)
		case *time.Time:
			*d = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeDB struct {
	row     fakeRow
	tag     pgconn.CommandTag
	execErr error
	args    []any
}

func (f *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.args = args
	return f.tag, f.execErr
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.args = args
	return f.row
}

func (f *fakeDB) Ping(context.Context) error { return nil }

func storedRow() []any {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []any{
		"p1", "org-1", "Encompass Export", "Encompass", "3.4", "LG",
		true, true,
		[]byte(`{"BaseLoanAmount":"deal.requested_amount"}`),
		[]byte(`{}`),
		[]byte(`{"require_all_borrowers":true,"strict_enum_validation":true}`),
		now, now, "user-1",
	}
}

func TestPostgresStore_GetScansJSONColumns(t *testing.T) {
	store := NewProfileStore(&fakeDB{row: fakeRow{values: storedRow()}}, nil)

	p, err := store.GetProfile(context.Background(), "org-1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "deal.requested_amount", p.CoreFieldMapping["BaseLoanAmount"])
	assert.NotNil(t, p.ExtensionFieldMapping)
	assert.True(t, p.ValidationRules.RequireAllBorrowers)
	assert.False(t, p.ValidationRules.AllowPartialData)
	assert.Equal(t, "user-1", p.CreatedBy)
}

func TestPostgresStore_GetMissingIsNotFound(t *testing.T) {
	store := NewProfileStore(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}}, nil)

	_, err := store.GetProfile(context.Background(), "org-1", "missing")
	var notFound *domain.ErrNotFound
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.ID)
}

func TestPostgresStore_UpdateMissingIsNotFound(t *testing.T) {
	store := NewProfileStore(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}}, nil)

	_, err := store.UpdateProfile(context.Background(), &domain.MappingProfile{ID: "p1", OrgID: "org-1"})
	var notFound *domain.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestPostgresStore_Delete(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("DELETE 1")}
	store := NewProfileStore(db, nil)
	require.NoError(t, store.DeleteProfile(context.Background(), "org-1", "p1"))
	assert.Equal(t, []any{"p1", "org-1"}, db.args)

	db.tag = pgconn.NewCommandTag("DELETE 0")
	err := store.DeleteProfile(context.Background(), "org-1", "p1")
	var notFound *domain.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestPostgresStore_FailuresAreStorageErrors(t *testing.T) {
	boom := errors.New("connection reset")
	store := NewProfileStore(&fakeDB{execErr: boom}, nil)

	err := store.DeleteProfile(context.Background(), "org-1", "p1")
	var storageErr *domain.ErrStorage
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "postgres/delete", storageErr.Op)
	assert.ErrorIs(t, err, boom)
}

func TestPostgresStore_CreateStoresEmptyTablesAsObjects(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: storedRow()}}
	store := NewProfileStore(db, nil)

	_, err := store.CreateProfile(context.Background(), &domain.MappingProfile{ID: "p1", OrgID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), db.args[8])
	assert.Equal(t, []byte("{}"), db.args[9])
}
