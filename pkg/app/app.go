// Package app assembles the opsagent service from its configuration: the
// database handles, the agent tools, the model client and the HTTP server.
package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/opsagent/pkg/agent"
	"github.com/doodlesbykumbi/opsagent/pkg/audit"
	"github.com/doodlesbykumbi/opsagent/pkg/config"
	"github.com/doodlesbykumbi/opsagent/pkg/db"
	"github.com/doodlesbykumbi/opsagent/pkg/metrics"
	"github.com/doodlesbykumbi/opsagent/pkg/server"
	"github.com/doodlesbykumbi/opsagent/pkg/server/endpoints"
	gormstore "github.com/doodlesbykumbi/opsagent/pkg/server/store/gorm"
	"github.com/doodlesbykumbi/opsagent/pkg/sqltool"
	"github.com/doodlesbykumbi/opsagent/pkg/websearch"
)

// App owns the long-lived resources of a running service
type App struct {
	Server *server.Server
	Runner *agent.Runner
	Pool   *pgxpool.Pool
	DB     *gorm.DB

	schema *agent.FileSchema
	audit  *audit.Store
	logger *log.Logger
}

// NewModel creates the OpenAI chat client described by cfg
func NewModel(cfg *config.Config) (llms.Model, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.OpenAIAPIKey != "" {
		opts = append(opts, openai.WithToken(cfg.OpenAIAPIKey))
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	return llm, nil
}

// New connects to the database and wires the service around llm. Close
// releases what New acquired.
func New(ctx context.Context, cfg *config.Config, llm llms.Model, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}
	audit.SetEnabled(cfg.AuditEnabled)

	dbCfg := db.Config{
		URL:      cfg.DatabaseURL,
		MinConns: cfg.PoolMinConns,
		MaxConns: cfg.PoolMaxConns,
		ReadOnly: cfg.ReadOnly,
		Debug:    cfg.LogLevel == "debug",
	}
	pool, err := db.NewPool(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	gormDB, err := db.Connect(dbCfg)
	if err != nil {
		db.ClosePool(pool)
		return nil, err
	}

	a := &App{Pool: pool, DB: gormDB, logger: logger}

	if cfg.AuditDatabaseURL != "" {
		store, err := audit.OpenStore(cfg.AuditDatabaseURL)
		if err != nil {
			logger.Warn("Audit events will not be stored", "err", err)
		} else {
			a.audit = store
			audit.SetStore(store)
		}
	}

	var schema agent.SchemaSource = agent.StaticSchema(agent.DefaultSchema)
	if cfg.SchemaFile != "" {
		fileSchema, err := agent.LoadFileSchema(cfg.SchemaFile, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.schema = fileSchema
		schema = fileSchema
	}

	m := metrics.New()
	tools, err := buildTools(cfg, pool, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Runner = agent.NewRunner(llm, tools, agent.Options{
		Model:         cfg.Model,
		MaxToolRounds: cfg.MaxToolRounds,
		Retries:       cfg.LLMRetries,
		Schema:        schema,
		Logger:        logger,
		Metrics:       m,
	})

	srv, err := server.NewServer(
		cfg,
		a.Runner,
		gormstore.NewSessionStore(gormDB),
		gormstore.NewHealthStore(gormDB),
		m,
		logger,
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	endpoints.RegisterAll(srv)
	a.Server = srv

	return a, nil
}

func buildTools(cfg *config.Config, pool *pgxpool.Pool, logger *log.Logger) (*agent.Registry, error) {
	executor := sqltool.New(pool, sqltool.Options{
		ReadOnly: cfg.ReadOnly,
		Timeout:  cfg.QueryTimeout,
		Logger:   logger,
	})
	tools := agent.NewRegistry(sqltool.NewTool(executor))

	if cfg.WebSearchEnabled {
		search, err := websearch.New(cfg.WebSearchMaxResults, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create web search tool: %w", err)
		}
		tools.Register(search)
	}
	return tools, nil
}

// WatchSchema follows the schema file until ctx is done. It returns
// immediately when the built-in schema is in use.
func (a *App) WatchSchema(ctx context.Context) {
	if a.schema == nil {
		return
	}
	if err := a.schema.Watch(ctx); err != nil {
		a.logger.Warn("Schema file watch stopped", "err", err)
	}
}

// Close releases the database handles
func (a *App) Close() {
	if a.audit != nil {
		audit.SetStore(nil)
		_ = a.audit.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	db.ClosePool(a.Pool)
}
