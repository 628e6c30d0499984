package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o600))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPSAGENT_CONFIG_PATH", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-5", cfg.Model)
	assert.Equal(t, 1, cfg.PoolMinConns)
	assert.Equal(t, 20, cfg.PoolMaxConns)
	assert.Equal(t, 80, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.BindAddress)
	assert.Equal(t, "0.0.0.0:80", cfg.Addr())
	assert.Equal(t, "default", cfg.Source("model"))
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := writeConfigFile(t, `
model: gpt-4o
pool_max_conns: 8
read_only: true
request_timeout: 45s
port: 9000
`)
	t.Setenv("OPSAGENT_CONFIG_PATH", dir)
	t.Setenv("DATABASE_URL", "postgres://app:secret@db:5432/company")
	t.Setenv("PORT", "8080")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "file", cfg.Source("model"))
	assert.Equal(t, 8, cfg.PoolMaxConns)
	assert.True(t, cfg.ReadOnly)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)

	// environment wins over the file
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "environment", cfg.Source("port"))
	assert.Equal(t, "environment", cfg.Source("database_url"))
}

func TestLoadInvalidFile(t *testing.T) {
	dir := writeConfigFile(t, "model: [unterminated")
	t.Setenv("OPSAGENT_CONFIG_PATH", dir)

	_, err := Load()
	assert.Error(t, err)
}

func TestEmptyRateLimitDisables(t *testing.T) {
	t.Setenv("OPSAGENT_CONFIG_PATH", t.TempDir())
	t.Setenv("OPSAGENT_RATE_LIMIT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "", cfg.RateLimit)
	assert.Equal(t, "environment", cfg.Source("rate_limit"))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.DatabaseURL = "postgres://localhost/company"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing database url", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "DATABASE_URL environment variable is not set"},
		{name: "zero min conns", mutate: func(c *Config) { c.PoolMinConns = 0 }, wantErr: "pool_min_conns"},
		{name: "max below min", mutate: func(c *Config) { c.PoolMinConns = 5; c.PoolMaxConns = 2 }, wantErr: "pool_max_conns"},
		{name: "bad rounds", mutate: func(c *Config) { c.MaxToolRounds = 0 }, wantErr: "max_tool_rounds"},
		{name: "bad rate", mutate: func(c *Config) { c.RateLimit = "lots" }, wantErr: "rate_limit"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log_format"},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAttributesMaskSecrets(t *testing.T) {
	cfg := Default()
	cfg.DatabaseURL = "postgres://app:hunter2@db:5432/company"
	cfg.OpenAIAPIKey = "sk-abcdefghijkl"
	cfg.JWTSecret = "abc"

	attrs := map[string]string{}
	for _, a := range cfg.Attributes() {
		attrs[a.Name] = a.Value
	}

	assert.Equal(t, "postgres://app:****@db:5432/company", attrs["database_url"])
	assert.NotContains(t, attrs["openai_api_key"], "abcdefghij")
	assert.Equal(t, "****", attrs["jwt_secret"])

	text := cfg.FormatText()
	assert.NotContains(t, text, "hunter2")

	js, err := cfg.FormatJSON()
	require.NoError(t, err)
	assert.Contains(t, js, `"attributes"`)
}

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"url", "postgres://app:hunter2@db:5432/company", "postgres://app:****@db:5432/company"},
		{"url without password", "postgres://app@db/company", "postgres://app@db/company"},
		{"url query password", "postgres://app@db/company?password=hunter2&sslmode=disable", "postgres://app@db/company?password=****&sslmode=disable"},
		{"keyword", "host=db user=app password=s3cret dbname=company", "host=db user=app password=**** dbname=company"},
		{"keyword spaced", "host=db password = s3cret dbname=company", "host=db password = **** dbname=company"},
		{"keyword quoted", `host=db password='s3 cr\'et' dbname=company`, "host=db password=**** dbname=company"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskDSN(tt.dsn))
		})
	}
}

func TestAttributesMaskKeywordDSN(t *testing.T) {
	cfg := Default()
	cfg.DatabaseURL = "host=db user=app password=s3cret dbname=company"
	cfg.AuditDatabaseURL = "postgres://audit:t0ps3cret@db/audit"

	text := cfg.FormatText()
	assert.NotContains(t, text, "s3cret")
	assert.NotContains(t, text, "t0ps3cret")

	js, err := cfg.FormatJSON()
	require.NoError(t, err)
	assert.NotContains(t, js, "s3cret")
	assert.Contains(t, js, "audit_database_url")
}

func TestAuditDatabaseURLFromEnv(t *testing.T) {
	t.Setenv("OPSAGENT_CONFIG_PATH", t.TempDir())
	t.Setenv("AUDIT_DATABASE_URL", "postgres://audit@db/audit")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://audit@db/audit", cfg.AuditDatabaseURL)
	assert.Equal(t, "environment", cfg.Source("audit_database_url"))
}
