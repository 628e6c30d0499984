package agent

import "errors"

var (
	// ErrTooManyToolRounds is returned when the model keeps requesting tools
	// past the configured number of rounds
	ErrTooManyToolRounds = errors.New("agent exceeded the maximum number of tool rounds")
	// ErrUnknownTool marks a call to a tool that is not registered
	ErrUnknownTool = errors.New("unknown tool")
	// ErrModel wraps failures of the language model after retries
	ErrModel = errors.New("language model request failed")
	// ErrEmptyResponse is returned when the model answers with no choices
	ErrEmptyResponse = errors.New("language model returned no choices")
)
