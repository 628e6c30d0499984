package sqltool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor(t *testing.T, opts Options) (*Executor, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	if opts.Logger == nil {
		opts.Logger = log.New(&bytes.Buffer{})
	}
	return New(mock, opts), mock
}

func TestExecuteSelect(t *testing.T) {
	executor, mock := newExecutor(t, Options{})

	query := "SELECT id, full_name, is_active FROM users"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "full_name", "is_active"}).
			AddRow(int32(1), "Ada Lovelace", true).
			AddRow(int32(2), "Alan Turing", false))

	out := executor.Execute(context.Background(), query)

	assert.Equal(t,
		`[{"id":1,"full_name":"Ada Lovelace","is_active":true},{"id":2,"full_name":"Alan Turing","is_active":false}]`,
		out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteEmptyResultSet(t *testing.T) {
	executor, mock := newExecutor(t, Options{})

	mock.ExpectQuery("SELECT").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	out := executor.Execute(context.Background(), "SELECT id FROM clients WHERE false")

	assert.Equal(t, "[]", out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteWithoutResultSet(t *testing.T) {
	executor, mock := newExecutor(t, Options{})

	mock.ExpectQuery("UPDATE tasks").
		WillReturnRows(pgxmock.NewRows([]string{}))

	out := executor.Execute(context.Background(), "UPDATE tasks SET task_status = 'Done' WHERE id = 4")

	var doc map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "success", doc["status"])
	assert.Equal(t, "Query executed successfully.", doc["message"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteError(t *testing.T) {
	var logs bytes.Buffer
	executor, mock := newExecutor(t, Options{Logger: log.New(&logs)})

	mock.ExpectQuery("SELECT").
		WillReturnError(errors.New(`relation "widgets" does not exist`))

	out := executor.Execute(context.Background(), "SELECT * FROM widgets")

	var doc map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "error", doc["status"])
	assert.Equal(t, `relation "widgets" does not exist`, doc["error"])
	assert.Contains(t, logs.String(), "SQL Execution Error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteStringifiesValues(t *testing.T) {
	executor, mock := newExecutor(t, Options{})

	start := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	created := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	id := [16]byte{0x12, 0x3e, 0x45, 0x67, 0xe8, 0x9b, 0x12, 0xd3, 0xa4, 0x56, 0x42, 0x66, 0x14, 0x17, 0x40, 0x00}

	rows := pgxmock.NewRowsWithColumnDefinition(
		pgconn.FieldDescription{Name: "start_date", DataTypeOID: pgtype.DateOID},
		pgconn.FieldDescription{Name: "created_at", DataTypeOID: pgtype.TimestamptzOID},
		pgconn.FieldDescription{Name: "ref", DataTypeOID: pgtype.UUIDOID},
		pgconn.FieldDescription{Name: "notes", DataTypeOID: pgtype.ByteaOID},
	).AddRow(start, created, id, []byte("fragile"))

	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	out := executor.Execute(context.Background(), "SELECT start_date, created_at, ref, notes FROM projects")

	var doc []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc, 1)
	assert.Equal(t, "2025-03-14", doc[0]["start_date"])
	assert.Equal(t, "2025-03-14 09:30:00+00:00", doc[0]["created_at"])
	assert.Equal(t, "123e4567-e89b-12d3-a456-426614174000", doc[0]["ref"])
	assert.Equal(t, "fragile", doc[0]["notes"])
}

func TestExecuteFractionalSeconds(t *testing.T) {
	executor, mock := newExecutor(t, Options{})

	logged := time.Date(2025, 3, 14, 12, 0, 0, 120_000_000, time.UTC)
	edited := time.Date(2025, 3, 14, 12, 0, 0, 5_000, time.UTC)
	rows := pgxmock.NewRowsWithColumnDefinition(
		pgconn.FieldDescription{Name: "logged_at", DataTypeOID: pgtype.TimestamptzOID},
		pgconn.FieldDescription{Name: "edited_at", DataTypeOID: pgtype.TimestampOID},
	).AddRow(logged, edited)

	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	out := executor.Execute(context.Background(), "SELECT logged_at, edited_at FROM tasks")

	assert.Equal(t, `[{"logged_at":"2025-03-14 12:00:00.120000+00:00","edited_at":"2025-03-14 12:00:00.000005"}]`, out)
}

func TestExecuteReadOnly(t *testing.T) {
	t.Run("commits read-only transaction", func(t *testing.T) {
		executor, mock := newExecutor(t, Options{ReadOnly: true})

		mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadOnly})
		mock.ExpectQuery("SELECT").
			WillReturnRows(pgxmock.NewRows([]string{"n"}).AddRow(int64(3)))
		mock.ExpectCommit()

		out := executor.Execute(context.Background(), "SELECT count(*) AS n FROM assets")

		assert.Equal(t, `[{"n":3}]`, out)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		executor, mock := newExecutor(t, Options{ReadOnly: true})

		mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadOnly})
		mock.ExpectQuery("DELETE").
			WillReturnError(errors.New("cannot execute DELETE in a read-only transaction"))
		mock.ExpectRollback()

		out := executor.Execute(context.Background(), "DELETE FROM assets")

		assert.Contains(t, out, "read-only transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestToolCall(t *testing.T) {
	executor, mock := newExecutor(t, Options{})
	tool := NewTool(executor)

	assert.Equal(t, "run_database_query", tool.Name())
	def := tool.Definition()
	require.NotNil(t, def.Function)
	assert.Equal(t, "function", def.Type)
	assert.Equal(t, "run_database_query", def.Function.Name)

	t.Run("runs query", func(t *testing.T) {
		mock.ExpectQuery("SELECT 1").
			WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(int32(1)))

		out, err := tool.Call(context.Background(), `{"query": "SELECT 1 AS one"}`)
		require.NoError(t, err)
		assert.Equal(t, `[{"one":1}]`, out)
	})

	t.Run("rejects malformed arguments", func(t *testing.T) {
		_, err := tool.Call(context.Background(), `{"query":`)
		assert.Error(t, err)
	})

	t.Run("rejects missing query", func(t *testing.T) {
		_, err := tool.Call(context.Background(), `{}`)
		assert.ErrorIs(t, err, errMissingQuery)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
