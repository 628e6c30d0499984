package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewStore(db)
	store.hostname = "agent-host"
	store.procid = "4242"
	store.now = func() time.Time { return time.Date(2025, 6, 3, 14, 5, 0, 0, time.UTC) }
	return store, mock
}

func TestStoreSave(t *testing.T) {
	store, mock := newMockStore(t)

	event := ToolEvent{
		Tool:      "run_database_query",
		CallID:    "call_abc",
		Arguments: `{"query":"SELECT 1"}`,
		Success:   true,
	}

	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(
			FacilityUser,
			int(SeverityNotice),
			time.Date(2025, 6, 3, 14, 5, 0, 0, time.UTC),
			"agent-host",
			"opsagent",
			"4242",
			"tool",
			sqlmock.AnyArg(),
			event.Message(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Save(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSaveError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO messages`).
		WillReturnError(errors.New(`relation "messages" does not exist`))

	err := store.Save(context.Background(), AgentEvent{Query: "hi", ErrorMessage: "boom"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save agent audit event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNilStore(t *testing.T) {
	var store *Store
	assert.NoError(t, store.Save(context.Background(), AuthEvent{Subject: "x"}))
	assert.NoError(t, store.Close())
}

func TestStoreClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, NewStore(db).Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogPersistsToStore(t *testing.T) {
	store, mock := newMockStore(t)

	prevLogger := DefaultLogger
	DefaultLogger = NewLogger()
	DefaultLogger.SetWriter(&bytes.Buffer{})
	prevStore := SetStore(store)
	t.Cleanup(func() {
		DefaultLogger = prevLogger
		SetStore(prevStore)
		SetEnabled(true)
	})
	SetEnabled(true)

	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(FacilityAuthPriv, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"opsagent", sqlmock.AnyArg(), "authn", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	Log(AuthEvent{Subject: "cli", Success: true})
	assert.NoError(t, mock.ExpectationsWereMet())

	SetStore(nil)
	Log(AuthEvent{Subject: "cli", Success: true})
	assert.NoError(t, mock.ExpectationsWereMet())
}
