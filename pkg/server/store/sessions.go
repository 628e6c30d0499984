package store

import (
	"context"
	"errors"

	"github.com/doodlesbykumbi/opsagent/pkg/model"
)

// ErrSessionNotFound is returned when a session has no stored messages
var ErrSessionNotFound = errors.New("session not found")

// DefaultHistoryLimit caps how many earlier messages are replayed to the model
const DefaultHistoryLimit = 50

// TranscriptLimit caps how many messages GET /sessions/{id} returns
const TranscriptLimit = 1000

// SessionStore abstracts conversation history storage
type SessionStore interface {
	// Messages returns up to limit of the most recent messages of a session,
	// oldest first. An unknown session yields an empty slice.
	Messages(ctx context.Context, sessionID string, limit int) ([]model.Message, error)

	// Append stores messages for a session in the given order
	Append(ctx context.Context, sessionID string, msgs ...model.Message) error

	// Delete removes a session's messages.
	// Returns ErrSessionNotFound if nothing was stored for it.
	Delete(ctx context.Context, sessionID string) error
}
