// Package config provides configuration management for opsagent.
//
// This package handles loading and validating server configuration
// from a .env file, an optional YAML file and environment variables.
//
// # Configuration Sources
//
// Configuration is loaded from, in increasing precedence:
//
//   - Built-in defaults
//   - .env in the working directory (does not override the environment)
//   - $OPSAGENT_CONFIG_PATH/opsagent.yml (default /etc/opsagent/opsagent.yml)
//   - Environment variables
//
// # Key Configuration Options
//
//   - DATABASE_URL: PostgreSQL connection string (required)
//   - OPENAI_API_KEY: Model provider credential
//   - OPSAGENT_MODEL: Chat model name (default: gpt-5)
//   - OPSAGENT_POOL_MIN_CONNS / OPSAGENT_POOL_MAX_CONNS: Query tool pool bounds (1/20)
//   - OPSAGENT_JWT_SECRET: Enables bearer token auth on /agent
//   - OPSAGENT_LOG_LEVEL: Logging verbosity
//   - PORT: Server listen port (default: 80)
package config
