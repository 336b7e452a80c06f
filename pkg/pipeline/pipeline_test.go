package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlab/mcphost/pkg/memctx"
)

// scriptedCompleter replays canned completions and captures each request.
type scriptedCompleter struct {
	replies  []*Completion
	err      error
	requests []*Request
}

func (c *scriptedCompleter) Complete(_ context.Context, req *Request) (*Completion, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.replies) == 0 {
		return &Completion{Text: "out of script"}, nil
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	return next, nil
}

// fakeDispatcher answers tool calls from a fixed table.
type fakeDispatcher struct {
	tools    []*mcp.Tool
	outputs  map[string]string
	failWith map[string]error
	calls    []string
}

func (d *fakeDispatcher) Tools() []*mcp.Tool { return d.tools }

func (d *fakeDispatcher) Dispatch(_ context.Context, name string, _ map[string]any) (string, error) {
	d.calls = append(d.calls, name)
	if err, ok := d.failWith[name]; ok {
		return "", err
	}
	out, ok := d.outputs[name]
	if !ok {
		return "", fmt.Errorf("no such tool %q", name)
	}
	return out, nil
}

// cancellingCompleter cancels the query as it hands back a tool request.
type cancellingCompleter struct {
	cancel context.CancelFunc
}

func (c *cancellingCompleter) Complete(context.Context, *Request) (*Completion, error) {
	c.cancel()
	return &Completion{
		ToolCalls:  []ToolRequest{{ID: "call_1", Name: "search"}},
		StopReason: "tool_use",
	}, nil
}

func newPipelineStore(t *testing.T) *memctx.Store {
	t.Helper()
	store, err := memctx.Open(memctx.Options{
		Path:   filepath.Join(t.TempDir(), "history.json"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessTextOnlyAnswer(t *testing.T) {
	t.Parallel()
	store := newPipelineStore(t)
	completer := &scriptedCompleter{replies: []*Completion{
		{Text: "Paris is the capital of France.", StopReason: "end_turn"},
	}}
	dispatcher := &fakeDispatcher{}

	pipe := New(completer, dispatcher, store, &Options{Logger: discardLogger()})
	answer, err := pipe.Process(context.Background(), "capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.", answer)

	require.Len(t, completer.requests, 1)
	assert.Empty(t, dispatcher.calls)

	turns := store.RecentTurns(1)
	require.Len(t, turns, 1)
	assert.Equal(t, "capital of France?", turns[0].UserInput)
	assert.Equal(t, answer, turns[0].AIResponse)
	assert.Empty(t, turns[0].ToolCalls)
}

func TestProcessRunsToolRoundThenAnswers(t *testing.T) {
	t.Parallel()
	store := newPipelineStore(t)
	completer := &scriptedCompleter{replies: []*Completion{
		{
			ToolCalls: []ToolRequest{
				{ID: "call_1", Name: "weather", Input: map[string]any{"city": "Oslo"}},
			},
			StopReason: "tool_use",
		},
		{Text: "It is sunny in Oslo.", StopReason: "end_turn"},
	}}
	dispatcher := &fakeDispatcher{
		outputs: map[string]string{"weather": "sunny, 18C"},
	}

	pipe := New(completer, dispatcher, store, &Options{Logger: discardLogger()})
	answer, err := pipe.Process(context.Background(), "weather in Oslo?")
	require.NoError(t, err)
	assert.Equal(t, "It is sunny in Oslo.", answer)
	assert.Equal(t, []string{"weather"}, dispatcher.calls)

	// The second completion request carries the first round's outcome.
	require.Len(t, completer.requests, 2)
	second := completer.requests[1]
	require.Len(t, second.Rounds, 1)
	require.Len(t, second.Rounds[0].Outcomes, 1)
	outcome := second.Rounds[0].Outcomes[0]
	assert.Equal(t, "call_1", outcome.Request.ID)
	assert.Equal(t, "sunny, 18C", outcome.Output)
	assert.False(t, outcome.IsError)

	turns := store.RecentTurns(1)
	require.Len(t, turns, 1)
	require.Len(t, turns[0].ToolCalls, 1)
	assert.Equal(t, "weather", turns[0].ToolCalls[0].Name)
	assert.True(t, turns[0].ToolCalls[0].Success)

	stats := store.UsageStats()
	assert.Equal(t, 1, stats.TotalCalls)
	assert.Equal(t, 1.0, stats.SuccessRate)
}

func TestProcessToolFailureFeedsErrorBack(t *testing.T) {
	t.Parallel()
	store := newPipelineStore(t)
	completer := &scriptedCompleter{replies: []*Completion{
		{
			ToolCalls:  []ToolRequest{{ID: "call_1", Name: "broken", Input: nil}},
			StopReason: "tool_use",
		},
		{Text: "That tool is unavailable.", StopReason: "end_turn"},
	}}
	dispatcher := &fakeDispatcher{
		failWith: map[string]error{"broken": errors.New("connection reset")},
	}

	pipe := New(completer, dispatcher, store, &Options{Logger: discardLogger()})
	answer, err := pipe.Process(context.Background(), "use the broken tool")
	require.NoError(t, err)
	assert.Equal(t, "That tool is unavailable.", answer)

	outcome := completer.requests[1].Rounds[0].Outcomes[0]
	assert.True(t, outcome.IsError)
	assert.Contains(t, outcome.Output, "connection reset")

	stats := store.UsageStats()
	assert.Equal(t, 1, stats.TotalCalls)
	assert.Equal(t, 0.0, stats.SuccessRate)

	turns := store.RecentTurns(1)
	require.Len(t, turns, 1)
	require.Len(t, turns[0].ToolCalls, 1)
	assert.False(t, turns[0].ToolCalls[0].Success)
}

func TestProcessRoundBudgetReturnsPartialAnswer(t *testing.T) {
	t.Parallel()
	store := newPipelineStore(t)
	looping := &Completion{
		Text:       "Still working on it.",
		ToolCalls:  []ToolRequest{{ID: "c", Name: "search", Input: map[string]any{"q": "x"}}},
		StopReason: "tool_use",
	}
	completer := &scriptedCompleter{replies: []*Completion{looping, looping, looping}}
	dispatcher := &fakeDispatcher{outputs: map[string]string{"search": "nothing yet"}}

	pipe := New(completer, dispatcher, store, &Options{MaxRounds: 2, Logger: discardLogger()})
	answer, err := pipe.Process(context.Background(), "keep searching")
	require.NoError(t, err)
	assert.Equal(t, "Still working on it.", answer)

	// Round budget of two means two completions and two dispatches.
	assert.Len(t, completer.requests, 2)
	assert.Len(t, dispatcher.calls, 2)
	assert.Equal(t, 1, store.TurnCount())
}

func TestProcessCompletionErrorRecordsNothing(t *testing.T) {
	t.Parallel()
	store := newPipelineStore(t)
	completer := &scriptedCompleter{err: errors.New("api unavailable")}
	dispatcher := &fakeDispatcher{}

	pipe := New(completer, dispatcher, store, &Options{Logger: discardLogger()})
	_, err := pipe.Process(context.Background(), "anything")
	var cerr *CompletionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 0, store.TurnCount())
}

func TestProcessCancellationDropsUnrecordedTurn(t *testing.T) {
	t.Parallel()
	store := newPipelineStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel between the completion and the tool dispatch; no further
	// rounds run and no turn is recorded.
	completer := &cancellingCompleter{cancel: cancel}
	dispatcher := &fakeDispatcher{outputs: map[string]string{"search": "unused"}}

	pipe := New(completer, dispatcher, store, &Options{Logger: discardLogger()})
	_, err := pipe.Process(ctx, "long running query")
	require.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, dispatcher.calls)
	assert.Equal(t, 0, store.TurnCount())
}

func TestProcessIncludesRelevantContextInSystem(t *testing.T) {
	t.Parallel()
	store := newPipelineStore(t)
	require.NoError(t, store.AddTurn("favorite database for analytics", "ClickHouse works well", nil))

	completer := &scriptedCompleter{replies: []*Completion{
		{Text: "As mentioned, ClickHouse.", StopReason: "end_turn"},
	}}
	pipe := New(completer, &fakeDispatcher{}, store, &Options{Logger: discardLogger()})

	_, err := pipe.Process(context.Background(), "which analytics database did we discuss?")
	require.NoError(t, err)

	require.Len(t, completer.requests, 1)
	system := completer.requests[0].System
	assert.True(t, strings.Contains(system, "ClickHouse works well"), "system prompt should embed the recalled turn: %q", system)
}
