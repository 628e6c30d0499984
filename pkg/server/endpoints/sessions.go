package endpoints

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/doodlesbykumbi/opsagent/pkg/model"
	"github.com/doodlesbykumbi/opsagent/pkg/server"
	"github.com/doodlesbykumbi/opsagent/pkg/server/store"
)

// SessionResponse is the transcript of a session
type SessionResponse struct {
	SessionID string          `json:"session_id"`
	Messages  []model.Message `json:"messages"`
}

// RegisterSessionsEndpoints registers the session transcript endpoints
func RegisterSessionsEndpoints(s *server.Server) {
	sessionStore := s.SessionStore

	// GET /sessions/{id} - Session transcript
	s.Router.Handle("/sessions/{id}", s.Protect(handleGetSession(sessionStore))).Methods("GET")

	// DELETE /sessions/{id} - Forget a session
	s.Router.Handle("/sessions/{id}", s.Protect(handleDeleteSession(sessionStore))).Methods("DELETE")
}

func handleGetSession(sessionStore store.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		msgs, err := sessionStore.Messages(r.Context(), id, store.TranscriptLimit)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(msgs) == 0 {
			respondWithError(w, http.StatusNotFound, store.ErrSessionNotFound.Error())
			return
		}

		respondWithJSON(w, http.StatusOK, SessionResponse{SessionID: id, Messages: msgs})
	}
}

func handleDeleteSession(sessionStore store.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		if err := sessionStore.Delete(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				respondWithError(w, http.StatusNotFound, err.Error())
				return
			}
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
