// Package pipeline turns one user query into an answer: it gathers relevant
// context from memory, asks the completion collaborator, runs any tool calls
// the model requests through the connection supervisor, and records the
// finished exchange.
package pipeline

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolRequest is a single tool invocation asked for by the model.
type ToolRequest struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolOutcome feeds one tool result back into the next completion round.
type ToolOutcome struct {
	Request ToolRequest
	Output  string
	IsError bool
}

// Completion is one model response: answer text plus any requested tool
// invocations.
type Completion struct {
	Text       string
	ToolCalls  []ToolRequest
	StopReason string

	// raw keeps the provider-shaped assistant message so follow-up rounds
	// can replay it verbatim.
	raw    anthropic.MessageParam
	hasRaw bool
}

// Round pairs a completion with the outcomes of the tool calls it requested.
type Round struct {
	Completion *Completion
	Outcomes   []ToolOutcome
}

// Request carries everything a completer needs for one completion: the
// system context, the original user input, the aggregated tool schemas, and
// the prior rounds of this query.
type Request struct {
	System    string
	UserInput string
	Tools     []*mcp.Tool
	Rounds    []Round
}

// Completer produces completions. Implementations are opaque to the
// pipeline; it only sees text and tool requests.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Completion, error)
}

// CompletionError wraps a completer failure. A query that hits one fails
// without recording a turn.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string {
	return "pipeline: completion failed: " + e.Err.Error()
}

func (e *CompletionError) Unwrap() error { return e.Err }
