// Package model defines the database models owned by opsagent.
//
// These are the service's own tables, not the company schema the agent
// queries through its SQL tool.
//
// # Models
//
//   - Message: One turn (user query or assistant answer) of a conversation session
//   - Role: Author of a Message
//
// # Database Schema
//
//   - agent_messages: Conversation history keyed by session_id
//   - messages: Audit records (written by pkg/audit, no GORM model)
package model
