package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/halcyonlab/mcphost/pkg/memctx"
)

const systemPreamble = "You are a helpful assistant with access to tools provided by connected MCP servers. Use them when they help answer the user's question."

// Dispatcher routes tool calls to their owning server. *mcphost.Host
// implements it.
type Dispatcher interface {
	Tools() []*mcp.Tool
	Dispatch(ctx context.Context, toolName string, args map[string]any) (string, error)
}

// Options configure a Pipeline.
type Options struct {
	// MaxRounds caps the completion/tool-call loop per query. Defaults to 5.
	MaxRounds int
	// ContextTurns is the relevant-context budget per query. Defaults to 3.
	ContextTurns int
	// Logger receives structured diagnostics.
	Logger *slog.Logger
}

// Pipeline processes queries. It holds no state beyond the in-flight query;
// every exchange lands in the store.
type Pipeline struct {
	completer    Completer
	dispatcher   Dispatcher
	store        *memctx.Store
	maxRounds    int
	contextTurns int
	logger       *slog.Logger
}

// New wires a pipeline from its collaborators.
func New(completer Completer, dispatcher Dispatcher, store *memctx.Store, opts *Options) *Pipeline {
	if opts == nil {
		opts = &Options{}
	}
	p := &Pipeline{
		completer:    completer,
		dispatcher:   dispatcher,
		store:        store,
		maxRounds:    opts.MaxRounds,
		contextTurns: opts.ContextTurns,
		logger:       opts.Logger,
	}
	if p.maxRounds <= 0 {
		p.maxRounds = 5
	}
	if p.contextTurns <= 0 {
		p.contextTurns = 3
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Process answers one user query. It retrieves relevant context, then loops:
// completion, dispatch of any requested tool calls (each recorded in the
// store), results fed back, until the model answers with text alone or the
// round budget runs out, which returns the best text seen so far. The
// finished exchange is recorded as one conversation turn; a completion
// failure records nothing.
func (p *Pipeline) Process(ctx context.Context, userInput string) (string, error) {
	relevant := p.store.RelevantContext(userInput, p.contextTurns)
	req := &Request{
		System:    systemPrompt(relevant),
		UserInput: userInput,
		Tools:     p.dispatcher.Tools(),
	}

	var (
		summaries []memctx.ToolCallSummary
		finalText string
		answered  bool
	)
	for round := 0; round < p.maxRounds; round++ {
		completion, err := p.completer.Complete(ctx, req)
		if err != nil {
			var cerr *CompletionError
			if errors.As(err, &cerr) {
				return "", err
			}
			return "", &CompletionError{Err: err}
		}
		if completion.Text != "" {
			finalText = completion.Text
		}
		if len(completion.ToolCalls) == 0 {
			answered = true
			break
		}

		outcomes := make([]ToolOutcome, 0, len(completion.ToolCalls))
		for _, call := range completion.ToolCalls {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			outcome, success := p.runToolCall(ctx, call)
			summaries = append(summaries, memctx.ToolCallSummary{Name: call.Name, Success: success})
			outcomes = append(outcomes, outcome)
		}
		req.Rounds = append(req.Rounds, Round{Completion: completion, Outcomes: outcomes})
	}
	if !answered {
		p.logger.Warn("tool round budget exhausted, returning partial answer", "rounds", p.maxRounds)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := p.store.AddTurn(userInput, finalText, summaries); err != nil {
		p.logger.Warn("record conversation turn", "error", err)
	}
	return finalText, nil
}

func (p *Pipeline) runToolCall(ctx context.Context, call ToolRequest) (ToolOutcome, bool) {
	started := time.Now()
	output, err := p.dispatcher.Dispatch(ctx, call.Name, call.Input)
	record := memctx.ToolCallRecord{
		Timestamp:    started,
		ToolName:     call.Name,
		InputParams:  call.Input,
		OutputResult: output,
		Success:      err == nil,
	}
	outcome := ToolOutcome{Request: call, Output: output}
	if err != nil {
		record.ErrorMessage = err.Error()
		outcome.IsError = true
		if outcome.Output == "" {
			outcome.Output = err.Error()
		}
		p.logger.Warn("tool call failed", "tool", call.Name, "error", err)
	} else {
		p.logger.Debug("tool call succeeded", "tool", call.Name, "duration", time.Since(started))
	}
	if perr := p.store.AddToolCall(record); perr != nil {
		p.logger.Warn("record tool call", "tool", call.Name, "error", perr)
	}
	return outcome, err == nil
}

func systemPrompt(turns []memctx.ConversationTurn) string {
	if len(turns) == 0 {
		return systemPreamble
	}
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nRelevant context from earlier conversations:\n")
	for _, turn := range turns {
		fmt.Fprintf(&b, "[%s] User: %s\nAssistant: %s\n",
			turn.Timestamp.Format(time.RFC3339), turn.UserInput, turn.AIResponse)
	}
	return b.String()
}
