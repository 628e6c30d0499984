// Package audit provides audit logging for agent activity.
//
// Every handled agent request, every tool the model invokes and every
// authentication decision is written as an RFC5424 syslog line to stdout.
// When an audit database is configured (AUDIT_DATABASE_URL) the same events
// are also stored in the messages table.
//
// # Event Types
//
//   - AgentEvent (msgid "agent"): one /agent request, with the query and tool-call count
//   - ToolEvent (msgid "tool"): one tool invocation, with its arguments (e.g. the SQL text)
//   - AuthEvent (msgid "authn"): bearer token accepted or rejected
//
// # Usage
//
//	audit.Log(audit.ToolEvent{Tool: "run_database_query", Arguments: args, Success: true})
//
// Audit logging is on by default; OPSAGENT_AUDIT_ENABLED=false turns it off.
package audit
