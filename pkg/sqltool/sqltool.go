package sqltool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/tmc/langchaingo/llms"
)

// Name is the function name the model uses to call the tool
const Name = "run_database_query"

var errMissingQuery = errors.New("missing required argument: query")

// Querier is the subset of *pgxpool.Pool the executor needs
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Options configures an Executor
type Options struct {
	// ReadOnly runs every statement inside a READ ONLY transaction
	ReadOnly bool
	// Timeout bounds a single statement; zero means no limit
	Timeout time.Duration
	Logger  *log.Logger
}

// Executor runs model-authored SQL against the company database
type Executor struct {
	db       Querier
	readOnly bool
	timeout  time.Duration
	logger   *log.Logger
}

// New creates an Executor drawing connections from db
func New(db Querier, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		db:       db,
		readOnly: opts.ReadOnly,
		timeout:  opts.Timeout,
		logger:   logger,
	}
}

// Execute runs query and returns the JSON document handed back to the model.
// It never fails: database errors are reported inside the document.
func (e *Executor) Execute(ctx context.Context, query string) string {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, err := e.run(ctx, query)
	if err != nil {
		e.logger.Error("SQL Execution Error", "err", err)
		return errorResult(err)
	}
	return out
}

func (e *Executor) run(ctx context.Context, query string) (string, error) {
	if !e.readOnly {
		rows, err := e.db.Query(ctx, query)
		if err != nil {
			return "", err
		}
		return collect(rows)
	}

	tx, err := e.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return "", err
	}
	rows, err := tx.Query(ctx, query)
	if err != nil {
		_ = tx.Rollback(ctx)
		return "", err
	}
	out, err := collect(rows)
	if err != nil {
		_ = tx.Rollback(ctx)
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return out, nil
}

// collect renders a result set as a JSON array of objects keyed by column
// name, in column order. Statements without a result set yield the
// success document.
func collect(rows pgx.Rows) (string, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	if len(fields) == 0 {
		for rows.Next() {
		}
		if err := rows.Err(); err != nil {
			return "", err
		}
		return successResult(), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	n := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return "", err
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		if err := writeRecord(&buf, fields, values); err != nil {
			return "", err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

func successResult() string {
	data, _ := json.Marshal(map[string]string{
		"status":  "success",
		"message": "Query executed successfully.",
	})
	return string(data)
}

func errorResult(err error) string {
	data, _ := json.Marshal(map[string]string{
		"status": "error",
		"error":  err.Error(),
	})
	return string(data)
}

// Tool exposes an Executor as the run_database_query function tool
type Tool struct {
	executor *Executor
	logger   *log.Logger
}

// NewTool wraps executor for registration with the agent
func NewTool(executor *Executor) *Tool {
	return &Tool{executor: executor, logger: executor.logger}
}

func (t *Tool) Name() string {
	return Name
}

func (t *Tool) Definition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        Name,
			Description: "Execute a generic SQL query to GET, ADD, or UPDATE data.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The valid PostgreSQL query to execute.",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

type arguments struct {
	Query string `json:"query"`
}

// Call decodes the model's arguments and runs the query. Argument errors are
// returned to the caller; database errors are embedded in the result.
func (t *Tool) Call(ctx context.Context, args string) (string, error) {
	var a arguments
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", Name, err)
	}
	if a.Query == "" {
		return "", errMissingQuery
	}

	t.logger.Info("Executing SQL: " + a.Query)
	return t.executor.Execute(ctx, a.Query), nil
}
