package audit

import (
	"fmt"
	"strconv"
)

// AgentEvent records one handled /agent request
type AgentEvent struct {
	Subject      string
	ClientIP     string
	SessionID    string
	Query        string
	ToolCalls    int
	Success      bool
	ErrorMessage string
}

func (e AgentEvent) MessageID() string {
	return "agent"
}

func (e AgentEvent) Message() string {
	who := e.Subject
	if who == "" {
		who = "anonymous"
	}
	if e.Success {
		return fmt.Sprintf("%s ran the agent with %d tool call(s)", who, e.ToolCalls)
	}
	msg := fmt.Sprintf("%s failed to run the agent", who)
	if e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e AgentEvent) Severity() Severity {
	if e.Success {
		return SeverityInfo
	}
	return SeverityWarning
}

func (e AgentEvent) Facility() int {
	return FacilityUser
}

func (e AgentEvent) StructuredData() map[string]map[string]string {
	sd := map[string]map[string]string{
		SDIDAgent: {
			"query":      truncate(e.Query),
			"tool_calls": strconv.Itoa(e.ToolCalls),
		},
		SDIDClient: {
			"ip": e.ClientIP,
		},
	}
	if e.SessionID != "" {
		sd[SDIDAgent]["session"] = e.SessionID
	}
	if e.Subject != "" {
		sd[SDIDSubject] = map[string]string{"sub": e.Subject}
	}
	return sd
}

// ToolEvent records one tool invocation made on the model's behalf
type ToolEvent struct {
	Tool         string
	CallID       string
	Arguments    string
	Success      bool
	ErrorMessage string
}

func (e ToolEvent) MessageID() string {
	return "tool"
}

func (e ToolEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("agent called %s", e.Tool)
	}
	msg := fmt.Sprintf("agent call to %s failed", e.Tool)
	if e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e ToolEvent) Severity() Severity {
	if e.Success {
		return SeverityNotice
	}
	return SeverityWarning
}

func (e ToolEvent) Facility() int {
	return FacilityUser
}

func (e ToolEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDTool: {
			"name":      e.Tool,
			"call_id":   e.CallID,
			"arguments": truncate(e.Arguments),
			"result":    resultString(e.Success),
		},
	}
}

// AuthEvent records a rejected or accepted bearer token
type AuthEvent struct {
	Subject      string
	ClientIP     string
	Success      bool
	ErrorMessage string
}

func (e AuthEvent) MessageID() string {
	return "authn"
}

func (e AuthEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("%s successfully authenticated", e.Subject)
	}
	msg := "request failed to authenticate"
	if e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e AuthEvent) Severity() Severity {
	if e.Success {
		return SeverityInfo
	}
	return SeverityWarning
}

func (e AuthEvent) Facility() int {
	return FacilityAuthPriv
}

func (e AuthEvent) StructuredData() map[string]map[string]string {
	sd := map[string]map[string]string{
		SDIDAuth: {
			"result": resultString(e.Success),
		},
		SDIDClient: {
			"ip": e.ClientIP,
		},
	}
	if e.Subject != "" {
		sd[SDIDAuth]["user"] = e.Subject
	}
	return sd
}

func resultString(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
