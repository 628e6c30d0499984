package audit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger()
	logger.SetWriter(&buf)

	event := AgentEvent{
		Subject:   "ops-dashboard",
		ClientIP:  "192.168.1.1",
		Query:     "How many tasks are blocked?",
		ToolCalls: 2,
		Success:   true,
	}

	logger.Log(event)

	output := buf.String()

	// <PRI> = facility*8 + severity = 1*8 + 6
	assert.True(t, strings.HasPrefix(output, "<14>1 "), output)
	assert.Contains(t, output, " opsagent ")
	assert.Contains(t, output, " agent ")
	assert.Contains(t, output, `[client@32473 ip="192.168.1.1"]`)
	assert.Contains(t, output, `sub="ops-dashboard"`)
	assert.Contains(t, output, "ops-dashboard ran the agent with 2 tool call(s)")
	assert.True(t, strings.HasSuffix(output, "\n"))
}

func TestAgentEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   AgentEvent
		wantMsg string
		wantSev Severity
	}{
		{
			name:    "anonymous success",
			event:   AgentEvent{Query: "hi", Success: true},
			wantMsg: "anonymous ran the agent with 0 tool call(s)",
			wantSev: SeverityInfo,
		},
		{
			name:    "failure with error",
			event:   AgentEvent{Subject: "cli", Query: "hi", ErrorMessage: "model unavailable"},
			wantMsg: "cli failed to run the agent: model unavailable",
			wantSev: SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "agent", tt.event.MessageID())
			assert.Equal(t, tt.wantMsg, tt.event.Message())
			assert.Equal(t, tt.wantSev, tt.event.Severity())
			assert.Equal(t, FacilityUser, tt.event.Facility())
		})
	}
}

func TestToolEventTruncatesArguments(t *testing.T) {
	long := `{"query":"SELECT ` + strings.Repeat("x", 2000) + `"}`
	event := ToolEvent{Tool: "run_database_query", CallID: "call_1", Arguments: long, Success: true}

	sd := event.StructuredData()
	assert.Len(t, sd[SDIDTool]["arguments"], maxSDValueLen+3)
	assert.Equal(t, "success", sd[SDIDTool]["result"])
	assert.Equal(t, SeverityNotice, event.Severity())
}

func TestAuthEvent(t *testing.T) {
	failed := AuthEvent{ClientIP: "10.0.0.1", ErrorMessage: "token is expired"}
	assert.Equal(t, "request failed to authenticate: token is expired", failed.Message())
	assert.Equal(t, FacilityAuthPriv, failed.Facility())
	assert.NotContains(t, failed.StructuredData()[SDIDAuth], "user")

	ok := AuthEvent{Subject: "cli", Success: true}
	assert.Equal(t, "cli successfully authenticated", ok.Message())
	assert.Equal(t, "cli", ok.StructuredData()[SDIDAuth]["user"])
}

func TestFormatStructuredData(t *testing.T) {
	sd := map[string]map[string]string{
		"b@1": {"z": "1", "a": `say "hi"]`},
		"a@1": {"k": `back\slash`},
	}
	got := formatStructuredData(sd)
	assert.Equal(t, `[a@1 k="back\\slash"][b@1 a="say \"hi\"\]" z="1"]`, got)
	assert.Equal(t, "", formatStructuredData(nil))
}

func TestLogRespectsEnabled(t *testing.T) {
	var buf bytes.Buffer
	prev := DefaultLogger
	DefaultLogger = NewLogger()
	DefaultLogger.SetWriter(&buf)
	t.Cleanup(func() {
		DefaultLogger = prev
		SetEnabled(true)
	})

	SetEnabled(false)
	Log(AuthEvent{Subject: "cli", Success: true})
	assert.Empty(t, buf.String())

	SetEnabled(true)
	Log(AuthEvent{Subject: "cli", Success: true})
	assert.Contains(t, buf.String(), "cli successfully authenticated")
}
