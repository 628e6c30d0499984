// Package agent runs the tool-calling loop behind POST /agent.
//
// A Runner sends the system instructions, the session history and the user
// query to a langchaingo model together with the definitions of the
// registered tools. Whenever the model replies with tool calls the Runner
// executes them, appends the results as tool messages and asks again. The
// first reply without tool calls is the answer. The loop is bounded by
// Options.MaxToolRounds.
package agent
