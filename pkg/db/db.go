package db

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds database connection configuration
type Config struct {
	// URL is the PostgreSQL connection string
	URL string
	// MinConns and MaxConns bound the query pool
	MinConns int
	MaxConns int
	// ReadOnly makes every pooled session default to read-only transactions
	ReadOnly bool
	// Debug enables SQL statement logging in GORM
	Debug bool
}

// Connect opens the GORM connection used for opsagent's own tables.
func Connect(cfg Config) (*gorm.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	logMode := logger.Silent
	if cfg.Debug {
		logMode = logger.Info
	}

	db, err := gorm.Open(
		postgres.New(postgres.Config{
			DSN:                  cfg.URL,
			PreferSimpleProtocol: true, // disables implicit prepared statement usage
		}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logMode),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewPool creates the connection pool the agent's SQL tool draws from and
// verifies it can reach the server.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("Failed to initialize database pool", "err", err)
		return nil, fmt.Errorf("failed to initialize database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		log.Error("Failed to initialize database pool", "err", err)
		return nil, fmt.Errorf("failed to initialize database pool: %w", err)
	}

	log.Info("Database connection pool initialized.", "min_conns", poolCfg.MinConns, "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// poolConfig builds the pool settings for model-authored SQL. Statements go
// over the simple query protocol so a single tool call may hold several
// statements; read-only mode is a session default so a COMMIT inside such a
// batch cannot escape it.
func poolConfig(cfg Config) (*pgxpool.Config, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns) // #nosec G115 -- validated by config
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns) // #nosec G115 -- validated by config
	}

	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	if cfg.ReadOnly {
		poolCfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	}
	return poolCfg, nil
}

// ClosePool releases every pooled connection.
func ClosePool(pool *pgxpool.Pool) {
	if pool == nil {
		return
	}
	pool.Close()
	log.Info("Database connection pool closed.")
}
