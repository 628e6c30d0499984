package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/doodlesbykumbi/opsagent/pkg/audit"
	"github.com/doodlesbykumbi/opsagent/pkg/metrics"
	"github.com/doodlesbykumbi/opsagent/pkg/model"
)

const defaultMaxToolRounds = 10

// Options configures a Runner
type Options struct {
	// Model is passed to the provider with every call; empty uses the client default
	Model         string
	MaxToolRounds int
	// Retries is the number of extra attempts for transient model failures
	Retries   int
	RetryBase time.Duration
	Schema    SchemaSource
	Logger    *log.Logger
	Metrics   *metrics.Metrics
	// Audit receives one event per tool call; defaults to audit.Log
	Audit func(audit.Event)
	// Now returns the current time for the instructions
	Now func() time.Time
}

// Request is one user turn
type Request struct {
	Query string
	// History holds earlier turns of the session, oldest first
	History []model.Message
}

// ToolCall records a tool invocation made while answering
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Output    string `json:"output"`
	Error     string `json:"error,omitempty"`
}

// Result is the final answer for a request
type Result struct {
	Response  string
	Rounds    int
	ToolCalls []ToolCall
}

// ToolNames lists the names of the tools invoked, in call order
func (r *Result) ToolNames() []string {
	names := make([]string, 0, len(r.ToolCalls))
	for _, c := range r.ToolCalls {
		names = append(names, c.Name)
	}
	return names
}

// Runner drives the model through tool calls until it produces an answer
type Runner struct {
	llm          llms.Model
	tools        *Registry
	instructions Instructions
	opts         Options
	logger       *log.Logger
	audit        func(audit.Event)
}

// NewRunner creates a Runner using llm and the registered tools
func NewRunner(llm llms.Model, tools *Registry, opts Options) *Runner {
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = defaultMaxToolRounds
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	auditFn := opts.Audit
	if auditFn == nil {
		auditFn = audit.Log
	}
	if tools == nil {
		tools = NewRegistry()
	}
	return &Runner{
		llm:          llm,
		tools:        tools,
		instructions: Instructions{Schema: opts.Schema, Now: opts.Now},
		opts:         opts,
		logger:       logger,
		audit:        auditFn,
	}
}

// Tools returns the registry the runner offers to the model
func (r *Runner) Tools() *Registry {
	return r.tools
}

// Run answers req. Each round sends the conversation to the model; tool
// calls it requests are executed and their output appended before the next
// round. The first reply without tool calls is the answer.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	messages := r.buildMessages(req)
	callOpts := r.callOptions()
	result := &Result{}

	for round := 0; round <= r.opts.MaxToolRounds; round++ {
		choice, err := r.generate(ctx, messages, callOpts)
		if err != nil {
			return nil, err
		}
		result.Rounds = round + 1

		if len(choice.ToolCalls) == 0 {
			result.Response = choice.Content
			return result, nil
		}
		if round == r.opts.MaxToolRounds {
			break
		}

		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if choice.Content != "" {
			assistant.Parts = append(assistant.Parts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, tc)
		}
		messages = append(messages, assistant)

		for _, tc := range choice.ToolCalls {
			call := r.invoke(ctx, tc)
			result.ToolCalls = append(result.ToolCalls, call)
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: call.ID,
					Name:       call.Name,
					Content:    call.Output,
				}},
			})
		}
	}

	r.logger.Warn("Tool round limit reached", "rounds", r.opts.MaxToolRounds)
	return nil, fmt.Errorf("%w (%d)", ErrTooManyToolRounds, r.opts.MaxToolRounds)
}

func (r *Runner) buildMessages(req Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.History)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, r.instructions.Render(r.tools.Names())))
	for _, m := range req.History {
		role := llms.ChatMessageTypeHuman
		if m.Role == model.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Query))
}

func (r *Runner) callOptions() []llms.CallOption {
	var opts []llms.CallOption
	if r.opts.Model != "" {
		opts = append(opts, llms.WithModel(r.opts.Model))
	}
	if defs := r.tools.Definitions(); len(defs) > 0 {
		opts = append(opts, llms.WithTools(defs))
	}
	return opts
}

func (r *Runner) generate(ctx context.Context, messages []llms.MessageContent, opts []llms.CallOption) (*llms.ContentChoice, error) {
	var resp *llms.ContentResponse
	err := withRetry(ctx, r.opts.Retries, r.opts.RetryBase, func(ctx context.Context) error {
		var err error
		resp, err = r.llm.GenerateContent(ctx, messages, opts...)
		if err != nil {
			r.logger.Debug("Model call failed", "err", err)
		}
		return err
	})
	if err != nil {
		r.opts.Metrics.IncLLMCall(metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		r.opts.Metrics.IncLLMCall(metrics.OutcomeError)
		return nil, ErrEmptyResponse
	}
	r.opts.Metrics.IncLLMCall(metrics.OutcomeSuccess)
	return resp.Choices[0], nil
}

// invoke runs one tool call. Failures are reported back to the model as a
// JSON error document so it can recover.
func (r *Runner) invoke(ctx context.Context, tc llms.ToolCall) ToolCall {
	call := ToolCall{ID: tc.ID}
	if tc.FunctionCall != nil {
		call.Name = tc.FunctionCall.Name
		call.Arguments = tc.FunctionCall.Arguments
	}

	var err error
	tool, ok := r.tools.Get(call.Name)
	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	} else {
		call.Output, err = tool.Call(ctx, call.Arguments)
	}

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		call.Error = err.Error()
		call.Output = toolError(err)
		r.logger.Warn("Tool call failed", "tool", call.Name, "err", err)
	}
	r.opts.Metrics.IncToolCall(call.Name, outcome)
	r.audit(audit.ToolEvent{
		Tool:         call.Name,
		CallID:       call.ID,
		Arguments:    call.Arguments,
		Success:      err == nil,
		ErrorMessage: call.Error,
	})
	return call
}

func toolError(err error) string {
	data, _ := json.Marshal(map[string]string{"status": "error", "error": err.Error()})
	return string(data)
}
