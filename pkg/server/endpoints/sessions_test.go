package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/opsagent/pkg/model"
	"github.com/doodlesbykumbi/opsagent/pkg/server/store"
)

func TestGetSession(t *testing.T) {
	t.Run("returns transcript", func(t *testing.T) {
		ts := newTestServer(t, testConfig())
		ts.sessions.On("Messages", mock.Anything, "s1", store.TranscriptLimit).Return([]model.Message{
			{SessionID: "s1", Role: model.RoleUser, Content: "hi"},
			{SessionID: "s1", Role: model.RoleAssistant, Content: "hello"},
		}, nil)

		w := ts.do("GET", "/sessions/s1", "", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp SessionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "s1", resp.SessionID)
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, model.RoleAssistant, resp.Messages[1].Role)
	})

	t.Run("transcript longer than the replayed history", func(t *testing.T) {
		ts := newTestServer(t, testConfig())
		msgs := make([]model.Message, store.DefaultHistoryLimit+10)
		for i := range msgs {
			msgs[i] = model.Message{SessionID: "s1", Role: model.RoleUser, Content: fmt.Sprintf("message %d", i)}
		}
		ts.sessions.On("Messages", mock.Anything, "s1", store.TranscriptLimit).Return(msgs, nil)

		w := ts.do("GET", "/sessions/s1", "", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp SessionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Messages, store.DefaultHistoryLimit+10)
		assert.Equal(t, "message 0", resp.Messages[0].Content)
		ts.sessions.AssertExpectations(t)
	})

	t.Run("unknown session", func(t *testing.T) {
		ts := newTestServer(t, testConfig())
		ts.sessions.On("Messages", mock.Anything, "nope", store.TranscriptLimit).Return([]model.Message{}, nil)

		w := ts.do("GET", "/sessions/nope", "", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		ts := newTestServer(t, testConfig())
		ts.sessions.On("Messages", mock.Anything, "s1", store.TranscriptLimit).Return(nil, errors.New("db down"))

		assert.Equal(t, http.StatusInternalServerError, ts.do("GET", "/sessions/s1", "", nil).Code)
	})
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t, testConfig())
	ts.sessions.On("Delete", mock.Anything, "s1").Return(nil)
	ts.sessions.On("Delete", mock.Anything, "nope").Return(store.ErrSessionNotFound)

	assert.Equal(t, http.StatusNoContent, ts.do("DELETE", "/sessions/s1", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do("DELETE", "/sessions/nope", "", nil).Code)
	ts.sessions.AssertExpectations(t)
}

func TestGetSessionWithGormStore(t *testing.T) {
	s, db, err := NewMockTestServer(testConfig(), &MockAgent{})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	RegisterAll(s)
	ts := &testServer{Server: s}

	rows := sqlmock.NewRows([]string{"id", "session_id", "role", "content", "created_at"}).
		AddRow(uuid.New().String(), "s1", "user", "hi", time.Now())
	db.Mock.ExpectQuery(`SELECT \* FROM "agent_messages" WHERE session_id = \$1 ORDER BY created_at desc LIMIT 1000`).
		WillReturnRows(rows)

	w := ts.do("GET", "/sessions/s1", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"user"`)
	assert.NoError(t, db.Mock.ExpectationsWereMet())
}
