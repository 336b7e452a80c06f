// Package shell is the interactive command surface of the host: a line REPL
// that routes slash commands to the memory store and connection supervisor
// and hands everything else to the query pipeline.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/halcyonlab/mcphost/pkg/mcphost"
	"github.com/halcyonlab/mcphost/pkg/memctx"
)

const historyDisplayLimit = 5

// QueryRunner answers free-form user input. *pipeline.Pipeline implements it.
type QueryRunner interface {
	Process(ctx context.Context, input string) (string, error)
}

// HostInfo exposes the supervisor state the shell displays. *mcphost.Host
// implements it.
type HostInfo interface {
	Summaries(ctx context.Context) []mcphost.ServerSummary
	ToolNames() []string
}

// Options configure a Shell.
type Options struct {
	// Input defaults to os.Stdin via the caller; the shell itself has no
	// default and requires a reader.
	Input io.Reader
	// Output receives prompts and command results.
	Output io.Writer
	// Logger receives structured diagnostics.
	Logger *slog.Logger
}

// Shell reads lines, dispatches commands, and keeps running through errors;
// only "exit", "quit", EOF, or context cancellation stop it.
type Shell struct {
	runner QueryRunner
	store  *memctx.Store
	host   HostInfo
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
}

// New wires a shell from its collaborators.
func New(runner QueryRunner, store *memctx.Store, host HostInfo, opts Options) *Shell {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Shell{
		runner: runner,
		store:  store,
		host:   host,
		in:     opts.Input,
		out:    opts.Output,
		logger: logger,
	}
}

// Run drives the REPL until exit, EOF, or context cancellation.
func (s *Shell) Run(ctx context.Context) error {
	s.printWelcome()
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(s.out, "\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if s.handleLine(ctx, line) {
			return nil
		}
	}
}

// handleLine reports true when the shell should exit.
func (s *Shell) handleLine(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "exit", "quit":
		return true
	case "/help":
		s.printHelp()
	case "/history":
		s.showHistory()
	case "/stats":
		s.showStats()
	case "/clear":
		if err := s.store.ClearSession(); err != nil {
			fmt.Fprintf(s.out, "clear failed: %v\n", err)
		} else {
			fmt.Fprintln(s.out, "Session context cleared.")
		}
	case "/export":
		s.export(arg)
	case "/servers":
		s.showServers(ctx)
	case "/tools":
		s.showTools()
	default:
		s.runQuery(ctx, line)
	}
	return false
}

func (s *Shell) runQuery(ctx context.Context, input string) {
	answer, err := s.runner.Process(ctx, input)
	if err != nil {
		s.logger.Error("query failed", "error", err)
		fmt.Fprintf(s.out, "Sorry, something went wrong: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, answer)
}

func (s *Shell) printWelcome() {
	fmt.Fprintln(s.out, "Connected. Ask a question, or type /help for commands; 'exit' quits.")
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `Commands:
  /history        show recent conversation turns
  /stats          show tool usage statistics
  /clear          clear the current session context
  /export [path]  export history to a JSON file
  /servers        show connected server status
  /tools          list available tools
  exit, quit      leave the shell`)
}

func (s *Shell) showHistory() {
	turns := s.store.RecentTurns(historyDisplayLimit)
	if len(turns) == 0 {
		fmt.Fprintln(s.out, "No conversation history yet.")
		return
	}
	fmt.Fprintln(s.out, "Recent conversations:")
	for i, turn := range turns {
		fmt.Fprintf(s.out, "--- turn %d (%s) ---\n", i+1, turn.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(s.out, "User: %s\n", truncate(turn.UserInput, 100))
		fmt.Fprintf(s.out, "Assistant: %s\n", truncate(turn.AIResponse, 100))
		if len(turn.ToolCalls) > 0 {
			fmt.Fprintf(s.out, "Tool calls: %d\n", len(turn.ToolCalls))
		}
	}
}

func (s *Shell) showStats() {
	stats := s.store.UsageStats()
	fmt.Fprintf(s.out, "Total tool calls: %d\n", stats.TotalCalls)
	fmt.Fprintf(s.out, "Success rate: %.1f%%\n", stats.SuccessRate*100)
	if len(stats.ToolStats) == 0 {
		fmt.Fprintln(s.out, "No tool calls recorded.")
		return
	}
	for name, ts := range stats.ToolStats {
		fmt.Fprintf(s.out, "  %s: %d calls, %.1f%% success, last used %s\n",
			name, ts.Total, ts.SuccessRate*100, ts.LastUsed.Format(time.RFC3339))
	}
}

func (s *Shell) export(path string) {
	if path == "" {
		path = memctx.DefaultExportPath(time.Now())
	}
	if err := s.store.ExportHistory(path); err != nil {
		fmt.Fprintf(s.out, "export failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "History exported to %s\n", path)
}

func (s *Shell) showServers(ctx context.Context) {
	summaries := s.host.Summaries(ctx)
	if len(summaries) == 0 {
		fmt.Fprintln(s.out, "No servers configured.")
		return
	}
	for _, sum := range summaries {
		fmt.Fprintf(s.out, "  %s [%s] %s, %d tools", sum.Name, sum.Kind, sum.Status, sum.ToolCount)
		if sum.Protocol != "" {
			fmt.Fprintf(s.out, ", protocol %s", sum.Protocol)
		}
		fmt.Fprintln(s.out)
	}
}

func (s *Shell) showTools() {
	names := s.host.ToolNames()
	if len(names) == 0 {
		fmt.Fprintln(s.out, "No tools available.")
		return
	}
	fmt.Fprintf(s.out, "%d tools available:\n", len(names))
	for _, name := range names {
		fmt.Fprintf(s.out, "  %s\n", name)
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
