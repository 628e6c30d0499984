// Package agenttest provides a scripted llms.Model for tests.
package agenttest

import (
	"context"
	"errors"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// ErrScriptExhausted is returned once every scripted step has been used
var ErrScriptExhausted = errors.New("agenttest: no scripted response left")

// Step is one scripted model reply
type Step struct {
	Content   string
	ToolCalls []llms.ToolCall
	Err       error
}

// Model replays Steps in order and records every call it receives
type Model struct {
	mu    sync.Mutex
	steps []Step
	calls [][]llms.MessageContent
	opts  []llms.CallOptions
}

var _ llms.Model = (*Model)(nil)

// NewModel creates a model answering with steps
func NewModel(steps ...Step) *Model {
	return &Model{steps: steps}
}

// Reply is a Step answering with text only
func Reply(text string) Step {
	return Step{Content: text}
}

// Fail is a Step failing with err
func Fail(err error) Step {
	return Step{Err: err}
}

// CallTool is a Step requesting a single tool call
func CallTool(id, name, args string) Step {
	return Step{ToolCalls: []llms.ToolCall{ToolCall(id, name, args)}}
}

// ToolCall builds a function tool call
func ToolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

// Push appends steps to the script
func (m *Model) Push(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]llms.MessageContent(nil), messages...))
	m.opts = append(m.opts, opts)

	if len(m.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:   step.Content,
			ToolCalls: step.ToolCalls,
		}},
	}, nil
}

func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns the messages sent with each GenerateContent call
func (m *Model) Calls() [][]llms.MessageContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]llms.MessageContent(nil), m.calls...)
}

// Options returns the resolved call options of each GenerateContent call
func (m *Model) Options() []llms.CallOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llms.CallOptions(nil), m.opts...)
}

// Remaining reports how many scripted steps are left
func (m *Model) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}
