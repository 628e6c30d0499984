// Package websearch implements the web_search tool on top of DuckDuckGo.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// Name is the function name the model uses to call the tool
const Name = "web_search"

const userAgent = "opsagent/1.0 (+https://github.com/doodlesbykumbi/opsagent)"

// Searcher runs a text search and returns a plain-text digest of the results
type Searcher interface {
	Call(ctx context.Context, input string) (string, error)
}

// Tool exposes a Searcher as the web_search function tool
type Tool struct {
	searcher Searcher
	logger   *log.Logger
}

// New builds the DuckDuckGo backed tool returning at most maxResults hits
func New(maxResults int, logger *log.Logger) (*Tool, error) {
	ddg, err := duckduckgo.New(maxResults, userAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to create web search client: %w", err)
	}
	return NewWithSearcher(ddg, logger), nil
}

// NewWithSearcher wraps an arbitrary Searcher
func NewWithSearcher(s Searcher, logger *log.Logger) *Tool {
	if logger == nil {
		logger = log.Default()
	}
	return &Tool{searcher: s, logger: logger}
}

func (t *Tool) Name() string {
	return Name
}

func (t *Tool) Definition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        Name,
			Description: "Search the internet for up-to-date external information.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search terms.",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// Call runs the search named in the model's arguments
func (t *Tool) Call(ctx context.Context, args string) (string, error) {
	var a struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", Name, err)
	}
	if a.Query == "" {
		return "", errors.New("missing required argument: query")
	}

	t.logger.Info("Searching web", "query", a.Query)
	return t.searcher.Call(ctx, a.Query)
}
