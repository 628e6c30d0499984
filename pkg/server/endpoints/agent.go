package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doodlesbykumbi/opsagent/pkg/agent"
	"github.com/doodlesbykumbi/opsagent/pkg/audit"
	"github.com/doodlesbykumbi/opsagent/pkg/metrics"
	"github.com/doodlesbykumbi/opsagent/pkg/model"
	"github.com/doodlesbykumbi/opsagent/pkg/server"
	"github.com/doodlesbykumbi/opsagent/pkg/server/middleware"
	"github.com/doodlesbykumbi/opsagent/pkg/server/store"
)

// maxBodyBytes bounds the /agent request body
const maxBodyBytes = 1 << 20

// AgentRequest is the body of POST /agent
type AgentRequest struct {
	Query     string  `json:"query"`
	SessionID *string `json:"session_id"`
}

// AgentResponse is the reply of POST /agent
type AgentResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id,omitempty"`
}

// RegisterAgentEndpoint registers POST /agent
func RegisterAgentEndpoint(s *server.Server) {
	s.Router.Handle("/agent", s.Protect(handleAgent(s))).Methods("POST")
}

func handleAgent(s *server.Server) http.HandlerFunc {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	timeout := s.Config.RequestTimeout

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var req AgentRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&req); err != nil {
			respondWithError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			respondWithError(w, http.StatusUnprocessableEntity, "query is required")
			return
		}
		sessionID := ""
		if req.SessionID != nil {
			sessionID = strings.TrimSpace(*req.SessionID)
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		var history []model.Message
		if sessionID != "" && s.SessionStore != nil {
			var err error
			history, err = s.SessionStore.Messages(ctx, sessionID, store.DefaultHistoryLimit)
			if err != nil {
				logger.Error("Failed to load session", "session_id", sessionID, "err", err)
				respondWithError(w, http.StatusInternalServerError, "failed to load session")
				return
			}
		}

		result, err := s.Agent.Run(ctx, agent.Request{Query: req.Query, History: history})

		event := audit.AgentEvent{
			Subject:   middleware.SubjectFromContext(r.Context()),
			ClientIP:  middleware.ClientIP(r),
			SessionID: sessionID,
			Query:     req.Query,
			Success:   err == nil,
		}
		if result != nil {
			event.ToolCalls = len(result.ToolCalls)
		}

		if err != nil {
			event.ErrorMessage = err.Error()
			audit.Log(event)
			s.Metrics.ObserveAgentRequest(metrics.OutcomeError, time.Since(start))
			logger.Error("Agent run failed", "err", err)
			respondWithError(w, agentErrorStatus(err), err.Error())
			return
		}
		audit.Log(event)
		s.Metrics.ObserveAgentRequest(metrics.OutcomeSuccess, time.Since(start))

		if sessionID != "" && s.SessionStore != nil {
			// The answer is already computed; a failed save only loses history.
			err := s.SessionStore.Append(context.WithoutCancel(ctx), sessionID,
				model.Message{Role: model.RoleUser, Content: req.Query},
				model.Message{Role: model.RoleAssistant, Content: result.Response},
			)
			if err != nil {
				logger.Error("Failed to save session", "session_id", sessionID, "err", err)
			}
		}

		if wantsHTML(r) {
			respondWithHTML(w, result.Response)
			return
		}
		respondWithJSON(w, http.StatusOK, AgentResponse{Response: result.Response, SessionID: sessionID})
	}
}

func agentErrorStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, agent.ErrModel),
		errors.Is(err, agent.ErrEmptyResponse),
		errors.Is(err, agent.ErrTooManyToolRounds):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
