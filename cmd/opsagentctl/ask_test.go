package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsk(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agent", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response": "Three tasks are blocked."}`))
	}))
	defer srv.Close()

	answer, err := ask(context.Background(), srv.Client(), srv.URL+"/", "blocked tasks?", "standup", "tok")
	require.NoError(t, err)
	assert.Equal(t, "Three tasks are blocked.", answer)
	assert.Equal(t, "blocked tasks?", got["query"])
	assert.Equal(t, "standup", got["session_id"])
}

func TestAskWithoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Nil(t, body["session_id"])
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"response": "ok"}`))
	}))
	defer srv.Close()

	answer, err := ask(context.Background(), srv.Client(), srv.URL, "q", "", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
}

func TestAskErrors(t *testing.T) {
	t.Run("error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "Authorization missing"}`))
		}))
		defer srv.Close()

		_, err := ask(context.Background(), srv.Client(), srv.URL, "q", "", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401: Authorization missing")
	})

	t.Run("non JSON body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}))
		defer srv.Close()

		_, err := ask(context.Background(), srv.Client(), srv.URL, "q", "", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upstream down")
	})
}
