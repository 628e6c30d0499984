package agent

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "Monday, January 02, 2006 at 03:04 PM"

var toolGuidance = map[string]string{
	"run_database_query": "Use 'run_database_query' for internal data.",
	"web_search":         "Use 'web_search' for external data.",
}

// Instructions renders the system prompt sent with every model call
type Instructions struct {
	Schema SchemaSource
	// Now returns the current time; defaults to time.Now
	Now func() time.Time
}

// Render builds the prompt for the given tool names. The current date is
// taken at call time so long conversations see a fresh clock.
func (i Instructions) Render(tools []string) string {
	now := time.Now
	if i.Now != nil {
		now = i.Now
	}
	schema := DefaultSchema
	if i.Schema != nil {
		schema = i.Schema.Schema()
	}

	var steps []string
	for _, name := range []string{"run_database_query", "web_search"} {
		if contains(tools, name) {
			steps = append(steps, toolGuidance[name])
		}
	}
	steps = append(steps, "Always return a final response to the user.")

	var sb strings.Builder
	sb.WriteString("Role: You are an assistant agent with access to a Company Database and the Internet.\n")
	sb.WriteString("Current date: " + now().Format(dateLayout) + "\n")
	sb.WriteString("Database Schema: " + schema + "\n")
	sb.WriteString("Instructions:\n")
	for n, step := range steps {
		sb.WriteString(fmt.Sprintf("%d. %s\n", n+1, step))
	}
	return sb.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
