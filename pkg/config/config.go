package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/ulule/limiter/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "/etc/opsagent"
	ConfigFileName    = "opsagent.yml"
	DefaultModel      = "gpt-5"
)

// Config holds all opsagent settings
type Config struct {
	// DatabaseURL is the PostgreSQL DSN used by the agent's query tool and the service tables
	DatabaseURL string `yaml:"database_url" json:"database_url"`

	// OpenAIAPIKey authenticates calls to the model provider
	OpenAIAPIKey string `yaml:"openai_api_key" json:"openai_api_key"`

	// OpenAIBaseURL points the client at an OpenAI-compatible endpoint
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`

	// Model is the chat model name
	Model string `yaml:"model" json:"model"`

	// PoolMinConns and PoolMaxConns bound the query tool's connection pool
	PoolMinConns int `yaml:"pool_min_conns" json:"pool_min_conns"`
	PoolMaxConns int `yaml:"pool_max_conns" json:"pool_max_conns"`

	// MaxToolRounds caps the number of tool-calling round trips per request
	MaxToolRounds int `yaml:"max_tool_rounds" json:"max_tool_rounds"`

	// RequestTimeout bounds one /agent request end to end
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// QueryTimeout bounds a single tool SQL statement
	QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout"`

	// LLMRetries is the number of retries for transient model errors
	LLMRetries int `yaml:"llm_retries" json:"llm_retries"`

	WebSearchEnabled    bool `yaml:"web_search_enabled" json:"web_search_enabled"`
	WebSearchMaxResults int  `yaml:"web_search_max_results" json:"web_search_max_results"`

	// ReadOnly runs tool SQL inside a READ ONLY transaction
	ReadOnly bool `yaml:"read_only" json:"read_only"`

	// SchemaFile overrides the built-in database schema description
	SchemaFile string `yaml:"schema_file" json:"schema_file"`

	// JWTSecret enables bearer token auth on agent routes when set
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret"`

	// RateLimit is a ulule formatted rate ("60-M"); empty disables limiting
	RateLimit string `yaml:"rate_limit" json:"rate_limit"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	AuditEnabled bool `yaml:"audit_enabled" json:"audit_enabled"`

	// AuditDatabaseURL persists audit events to a messages table when set
	AuditDatabaseURL string `yaml:"audit_database_url" json:"audit_database_url"`

	Port        int    `yaml:"port" json:"port"`
	BindAddress string `yaml:"bind_address" json:"bind_address"`

	// sources tracks where each value came from
	sources map[string]string

	// configFilePath is the path to the config file
	configFilePath string
}

// Attribute represents a configuration attribute with its value and source
type Attribute struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// Global singleton config
var (
	globalConfig *Config
	configMu     sync.RWMutex
)

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	configMu.RLock()
	if globalConfig != nil {
		configMu.RUnlock()
		return globalConfig
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()

	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			log.Warn("falling back to default configuration", "err", err)
			globalConfig = Default()
		} else {
			globalConfig = cfg
		}
	}
	return globalConfig
}

// Reload reloads the configuration from file and environment
func Reload() error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
	return nil
}

// Default returns a Config holding only default values
func Default() *Config {
	return &Config{
		Model:               DefaultModel,
		PoolMinConns:        1,
		PoolMaxConns:        20,
		MaxToolRounds:       10,
		RequestTimeout:      120 * time.Second,
		QueryTimeout:        30 * time.Second,
		LLMRetries:          3,
		WebSearchEnabled:    true,
		WebSearchMaxResults: 5,
		RateLimit:           "60-M",
		LogLevel:            "info",
		LogFormat:           "text",
		AuditEnabled:        true,
		Port:                80,
		BindAddress:         "0.0.0.0",
		sources:             make(map[string]string),
	}
}

// Load loads configuration from .env, the config file and environment variables.
// Environment variables take precedence over file values.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	config := Default()
	for _, name := range attributeNames() {
		config.sources[name] = "default"
	}

	configPath := os.Getenv("OPSAGENT_CONFIG_PATH")
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	config.configFilePath = filepath.Join(configPath, ConfigFileName)

	if data, err := os.ReadFile(config.configFilePath); err == nil {
		var fileConfig fileConfig
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", config.configFilePath, err)
		}
		config.applyFileConfig(&fileConfig)
	}

	config.applyEnvConfig()

	return config, nil
}

// fileConfig mirrors Config with pointer fields so that explicit zero values
// in the file (e.g. read_only: false) can be told apart from absent keys.
type fileConfig struct {
	DatabaseURL         *string `yaml:"database_url"`
	OpenAIAPIKey        *string `yaml:"openai_api_key"`
	OpenAIBaseURL       *string `yaml:"openai_base_url"`
	Model               *string `yaml:"model"`
	PoolMinConns        *int    `yaml:"pool_min_conns"`
	PoolMaxConns        *int    `yaml:"pool_max_conns"`
	MaxToolRounds       *int    `yaml:"max_tool_rounds"`
	RequestTimeout      *string `yaml:"request_timeout"`
	QueryTimeout        *string `yaml:"query_timeout"`
	LLMRetries          *int    `yaml:"llm_retries"`
	WebSearchEnabled    *bool   `yaml:"web_search_enabled"`
	WebSearchMaxResults *int    `yaml:"web_search_max_results"`
	ReadOnly            *bool   `yaml:"read_only"`
	SchemaFile          *string `yaml:"schema_file"`
	JWTSecret           *string `yaml:"jwt_secret"`
	RateLimit           *string `yaml:"rate_limit"`
	LogLevel            *string `yaml:"log_level"`
	LogFormat           *string `yaml:"log_format"`
	AuditEnabled        *bool   `yaml:"audit_enabled"`
	AuditDatabaseURL    *string `yaml:"audit_database_url"`
	Port                *int    `yaml:"port"`
	BindAddress         *string `yaml:"bind_address"`
}

func attributeNames() []string {
	return []string{
		"database_url", "openai_api_key", "openai_base_url", "model",
		"pool_min_conns", "pool_max_conns", "max_tool_rounds",
		"request_timeout", "query_timeout", "llm_retries",
		"web_search_enabled", "web_search_max_results", "read_only",
		"schema_file", "jwt_secret", "rate_limit", "log_level", "log_format",
		"audit_enabled", "audit_database_url", "port", "bind_address",
	}
}

func (c *Config) applyFileConfig(file *fileConfig) {
	setString(c, &c.DatabaseURL, file.DatabaseURL, "database_url")
	setString(c, &c.OpenAIAPIKey, file.OpenAIAPIKey, "openai_api_key")
	setString(c, &c.OpenAIBaseURL, file.OpenAIBaseURL, "openai_base_url")
	setString(c, &c.Model, file.Model, "model")
	setInt(c, &c.PoolMinConns, file.PoolMinConns, "pool_min_conns")
	setInt(c, &c.PoolMaxConns, file.PoolMaxConns, "pool_max_conns")
	setInt(c, &c.MaxToolRounds, file.MaxToolRounds, "max_tool_rounds")
	setInt(c, &c.LLMRetries, file.LLMRetries, "llm_retries")
	setBool(c, &c.WebSearchEnabled, file.WebSearchEnabled, "web_search_enabled")
	setInt(c, &c.WebSearchMaxResults, file.WebSearchMaxResults, "web_search_max_results")
	setBool(c, &c.ReadOnly, file.ReadOnly, "read_only")
	setString(c, &c.SchemaFile, file.SchemaFile, "schema_file")
	setString(c, &c.JWTSecret, file.JWTSecret, "jwt_secret")
	setString(c, &c.RateLimit, file.RateLimit, "rate_limit")
	setString(c, &c.LogLevel, file.LogLevel, "log_level")
	setString(c, &c.LogFormat, file.LogFormat, "log_format")
	setBool(c, &c.AuditEnabled, file.AuditEnabled, "audit_enabled")
	setString(c, &c.AuditDatabaseURL, file.AuditDatabaseURL, "audit_database_url")
	setInt(c, &c.Port, file.Port, "port")
	setString(c, &c.BindAddress, file.BindAddress, "bind_address")

	if file.RequestTimeout != nil {
		if d, err := time.ParseDuration(*file.RequestTimeout); err == nil {
			c.RequestTimeout = d
			c.sources["request_timeout"] = "file"
		}
	}
	if file.QueryTimeout != nil {
		if d, err := time.ParseDuration(*file.QueryTimeout); err == nil {
			c.QueryTimeout = d
			c.sources["query_timeout"] = "file"
		}
	}
}

func setString(c *Config, dst *string, v *string, name string) {
	if v != nil {
		*dst = *v
		c.sources[name] = "file"
	}
}

func setInt(c *Config, dst *int, v *int, name string) {
	if v != nil {
		*dst = *v
		c.sources[name] = "file"
	}
}

func setBool(c *Config, dst *bool, v *bool, name string) {
	if v != nil {
		*dst = *v
		c.sources[name] = "file"
	}
}

func (c *Config) applyEnvConfig() {
	envString := func(key, name string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
			c.sources[name] = "environment"
		}
	}
	envInt := func(key, name string, dst *int) {
		if val := os.Getenv(key); val != "" {
			if i, err := strconv.Atoi(val); err == nil {
				*dst = i
				c.sources[name] = "environment"
			}
		}
	}
	envBool := func(key, name string, dst *bool) {
		if val := os.Getenv(key); val != "" {
			*dst = parseBool(val)
			c.sources[name] = "environment"
		}
	}
	envDuration := func(key, name string, dst *time.Duration) {
		if val := os.Getenv(key); val != "" {
			if d, err := time.ParseDuration(val); err == nil {
				*dst = d
				c.sources[name] = "environment"
			} else if secs, err := strconv.Atoi(val); err == nil {
				*dst = time.Duration(secs) * time.Second
				c.sources[name] = "environment"
			}
		}
	}

	envString("DATABASE_URL", "database_url", &c.DatabaseURL)
	envString("OPENAI_API_KEY", "openai_api_key", &c.OpenAIAPIKey)
	envString("OPENAI_BASE_URL", "openai_base_url", &c.OpenAIBaseURL)
	envString("OPSAGENT_MODEL", "model", &c.Model)
	envInt("OPSAGENT_POOL_MIN_CONNS", "pool_min_conns", &c.PoolMinConns)
	envInt("OPSAGENT_POOL_MAX_CONNS", "pool_max_conns", &c.PoolMaxConns)
	envInt("OPSAGENT_MAX_TOOL_ROUNDS", "max_tool_rounds", &c.MaxToolRounds)
	envDuration("OPSAGENT_REQUEST_TIMEOUT", "request_timeout", &c.RequestTimeout)
	envDuration("OPSAGENT_QUERY_TIMEOUT", "query_timeout", &c.QueryTimeout)
	envInt("OPSAGENT_LLM_RETRIES", "llm_retries", &c.LLMRetries)
	envBool("OPSAGENT_WEB_SEARCH_ENABLED", "web_search_enabled", &c.WebSearchEnabled)
	envInt("OPSAGENT_WEB_SEARCH_MAX_RESULTS", "web_search_max_results", &c.WebSearchMaxResults)
	envBool("OPSAGENT_READ_ONLY", "read_only", &c.ReadOnly)
	envString("OPSAGENT_SCHEMA_FILE", "schema_file", &c.SchemaFile)
	envString("OPSAGENT_JWT_SECRET", "jwt_secret", &c.JWTSecret)
	envString("OPSAGENT_LOG_LEVEL", "log_level", &c.LogLevel)
	envString("OPSAGENT_LOG_FORMAT", "log_format", &c.LogFormat)
	envBool("OPSAGENT_AUDIT_ENABLED", "audit_enabled", &c.AuditEnabled)
	envString("AUDIT_DATABASE_URL", "audit_database_url", &c.AuditDatabaseURL)
	envInt("PORT", "port", &c.Port)
	envString("BIND_ADDRESS", "bind_address", &c.BindAddress)

	// An explicitly empty rate limit disables limiting.
	if val, ok := os.LookupEnv("OPSAGENT_RATE_LIMIT"); ok {
		c.RateLimit = strings.TrimSpace(val)
		c.sources["rate_limit"] = "environment"
	}
}

func parseBool(val string) bool {
	val = strings.ToLower(strings.TrimSpace(val))
	return val == "true" || val == "1" || val == "yes"
}

// ConfigFilePath returns the path to the config file
func (c *Config) ConfigFilePath() string {
	return c.configFilePath
}

// Source returns the source of a configuration attribute
func (c *Config) Source(name string) string {
	if c.sources == nil {
		return "default"
	}
	if s, ok := c.sources[name]; ok {
		return s
	}
	return "default"
}

// Addr returns the host:port the server listens on
func (c *Config) Addr() string {
	return c.BindAddress + ":" + strconv.Itoa(c.Port)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if c.PoolMinConns < 1 {
		return fmt.Errorf("invalid pool_min_conns %d: must be at least 1", c.PoolMinConns)
	}
	if c.PoolMaxConns < c.PoolMinConns {
		return fmt.Errorf("invalid pool_max_conns %d: must be >= pool_min_conns %d", c.PoolMaxConns, c.PoolMinConns)
	}
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("invalid max_tool_rounds %d: must be positive", c.MaxToolRounds)
	}
	if c.LLMRetries < 0 {
		return fmt.Errorf("invalid llm_retries %d", c.LLMRetries)
	}
	if c.RateLimit != "" {
		if _, err := limiter.NewRateFromFormatted(c.RateLimit); err != nil {
			return fmt.Errorf("invalid rate_limit %q: %w", c.RateLimit, err)
		}
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	switch c.LogFormat {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Attributes returns all configuration attributes with their values and sources.
// Credentials are masked.
func (c *Config) Attributes() []Attribute {
	return []Attribute{
		{Name: "database_url", Value: maskDSN(c.DatabaseURL), Source: c.Source("database_url")},
		{Name: "openai_api_key", Value: mask(c.OpenAIAPIKey), Source: c.Source("openai_api_key")},
		{Name: "openai_base_url", Value: c.OpenAIBaseURL, Source: c.Source("openai_base_url")},
		{Name: "model", Value: c.Model, Source: c.Source("model")},
		{Name: "pool_min_conns", Value: strconv.Itoa(c.PoolMinConns), Source: c.Source("pool_min_conns")},
		{Name: "pool_max_conns", Value: strconv.Itoa(c.PoolMaxConns), Source: c.Source("pool_max_conns")},
		{Name: "max_tool_rounds", Value: strconv.Itoa(c.MaxToolRounds), Source: c.Source("max_tool_rounds")},
		{Name: "request_timeout", Value: c.RequestTimeout.String(), Source: c.Source("request_timeout")},
		{Name: "query_timeout", Value: c.QueryTimeout.String(), Source: c.Source("query_timeout")},
		{Name: "llm_retries", Value: strconv.Itoa(c.LLMRetries), Source: c.Source("llm_retries")},
		{Name: "web_search_enabled", Value: strconv.FormatBool(c.WebSearchEnabled), Source: c.Source("web_search_enabled")},
		{Name: "web_search_max_results", Value: strconv.Itoa(c.WebSearchMaxResults), Source: c.Source("web_search_max_results")},
		{Name: "read_only", Value: strconv.FormatBool(c.ReadOnly), Source: c.Source("read_only")},
		{Name: "schema_file", Value: c.SchemaFile, Source: c.Source("schema_file")},
		{Name: "jwt_secret", Value: mask(c.JWTSecret), Source: c.Source("jwt_secret")},
		{Name: "rate_limit", Value: c.RateLimit, Source: c.Source("rate_limit")},
		{Name: "log_level", Value: c.LogLevel, Source: c.Source("log_level")},
		{Name: "log_format", Value: c.LogFormat, Source: c.Source("log_format")},
		{Name: "audit_enabled", Value: strconv.FormatBool(c.AuditEnabled), Source: c.Source("audit_enabled")},
		{Name: "audit_database_url", Value: maskDSN(c.AuditDatabaseURL), Source: c.Source("audit_database_url")},
		{Name: "port", Value: strconv.Itoa(c.Port), Source: c.Source("port")},
		{Name: "bind_address", Value: c.BindAddress, Source: c.Source("bind_address")},
	}
}

// FormatText returns a text representation of the configuration
func (c *Config) FormatText() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Config file: %s\n\n", c.configFilePath))
	sb.WriteString(fmt.Sprintf("%-25s %-45s %s\n", "NAME", "VALUE", "SOURCE"))
	sb.WriteString(fmt.Sprintf("%-25s %-45s %s\n", "----", "-----", "------"))

	for _, attr := range c.Attributes() {
		value := attr.Value
		if value == "" {
			value = "(not set)"
		}
		sb.WriteString(fmt.Sprintf("%-25s %-45s %s\n", attr.Name, value, attr.Source))
	}
	return sb.String()
}

// FormatJSON returns a JSON representation of the configuration
func (c *Config) FormatJSON() (string, error) {
	result := map[string]interface{}{
		"config_file": c.configFilePath,
		"attributes":  c.Attributes(),
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", 6) + s[len(s)-2:]
}

// dsnPassword matches a password setting in a keyword DSN or a URL query
var dsnPassword = regexp.MustCompile(`(password\s*=\s*)('(?:[^'\\]|\\.)*'|[^\s&]+)`)

// maskDSN hides the password of a postgres URL or keyword/value DSN
func maskDSN(dsn string) string {
	dsn = dsnPassword.ReplaceAllString(dsn, "${1}****")

	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	colon := strings.Index(creds, ":")
	if colon < 0 {
		return dsn
	}
	return dsn[:scheme+3] + creds[:colon] + ":****" + dsn[at:]
}
