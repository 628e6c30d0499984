// Command opsagentctl runs the opsagent service, an HTTP API in front of an
// LLM agent that can query the company PostgreSQL database and search the web.
//
// # Quick Start
//
//	export DATABASE_URL=postgres://postgres@localhost/company?sslmode=disable
//	export OPENAI_API_KEY=...
//
//	# Create the schema
//	opsagentctl db migrate
//
//	# Start the server (runs migrations first unless --no-migrate)
//	opsagentctl server
//
//	# Ask a question
//	opsagentctl ask "Which projects are blocked?"
//
// # Environment Variables
//
//   - DATABASE_URL: PostgreSQL connection string (required)
//   - OPENAI_API_KEY, OPENAI_BASE_URL: model provider credentials and endpoint
//   - OPSAGENT_MODEL: chat model name (default: gpt-5)
//   - OPSAGENT_JWT_SECRET: enables bearer token auth on /agent and /sessions
//   - OPSAGENT_LOG_LEVEL, OPSAGENT_LOG_FORMAT: logging
//   - PORT, BIND_ADDRESS: listen address (default: 0.0.0.0:80)
//
// Run "opsagentctl configuration show" for the full list and current values.
package main
