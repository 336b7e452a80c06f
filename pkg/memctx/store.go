// Package memctx keeps the host's interaction memory: a bounded log of
// conversation turns and tool call records, persisted wholesale to a single
// JSON file and queried by keyword relevance when building context for a new
// query.
package memctx

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxHistory is the turn cap applied when Options omits one.
	DefaultMaxHistory = 100

	// toolCallFactor scales the tool call cap relative to the turn cap;
	// tool call records are kept longer than the turns that produced them.
	toolCallFactor = 5
)

// ToolCallSummary is the per-turn digest of one tool invocation.
type ToolCallSummary struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
}

// ConversationTurn is one immutable user/assistant exchange.
type ConversationTurn struct {
	Timestamp  time.Time         `json:"timestamp"`
	UserInput  string            `json:"user_input"`
	AIResponse string            `json:"ai_response"`
	ToolCalls  []ToolCallSummary `json:"tool_calls"`
	SessionID  string            `json:"session_id"`
}

// ToolCallRecord captures the outcome of one tool invocation.
type ToolCallRecord struct {
	Timestamp    time.Time      `json:"timestamp"`
	ToolName     string         `json:"tool_name"`
	InputParams  map[string]any `json:"input_params"`
	OutputResult string         `json:"output_result"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

type historyFile struct {
	Conversations []ConversationTurn `json:"conversations"`
	ToolCalls     []ToolCallRecord   `json:"tool_calls"`
	LastUpdated   time.Time          `json:"last_updated"`
}

// Options configure a Store.
type Options struct {
	// Path is the history file. Defaults to "context_history.json".
	Path string
	// MaxHistory caps the retained turns; tool call records are capped at
	// five times this value.
	MaxHistory int
	// Logger receives structured diagnostics.
	Logger *slog.Logger
}

// Store holds the bounded interaction memory. All mutations append, trim to
// the caps, and rewrite the history file; readers always see a consistent
// snapshot.
type Store struct {
	mu         sync.RWMutex
	path       string
	maxHistory int
	sessionID  string
	turns      []ConversationTurn
	calls      []ToolCallRecord
	logger     *slog.Logger
}

// Open creates a Store and replays the history file when one exists. A file
// that cannot be decoded is moved aside to "<path>.backup.json" and the store
// starts empty; Open fails only on configuration or I/O errors.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		opts.Path = "context_history.json"
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("memctx: create history dir: %w", err)
		}
	}
	s := &Store{
		path:       opts.Path,
		maxHistory: opts.MaxHistory,
		sessionID:  uuid.NewString(),
		logger:     opts.Logger,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.logger.Debug("context store ready",
		"session", s.sessionID, "turns", len(s.turns), "tool_calls", len(s.calls))
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("memctx: read history: %w", err)
	}
	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		backup := backupPath(s.path)
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			return fmt.Errorf("memctx: back up corrupt history: %w", renameErr)
		}
		s.logger.Warn("history file corrupt, starting empty",
			"path", s.path, "backup", backup, "error", err)
		return nil
	}
	s.turns = trimTurns(file.Conversations, s.maxHistory)
	s.calls = trimCalls(file.ToolCalls, s.maxHistory*toolCallFactor)
	return nil
}

func backupPath(path string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return base + ".backup.json"
}

// SessionID returns the identifier stamped on turns recorded by this store.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// AddTurn records one exchange and persists the store.
func (s *Store) AddTurn(userInput, aiResponse string, toolCalls []ToolCallSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, ConversationTurn{
		Timestamp:  time.Now(),
		UserInput:  userInput,
		AIResponse: aiResponse,
		ToolCalls:  toolCalls,
		SessionID:  s.sessionID,
	})
	s.turns = trimTurns(s.turns, s.maxHistory)
	return s.persistLocked()
}

// AddToolCall records one tool invocation outcome and persists the store. A
// zero timestamp is filled with the current time.
func (s *Store) AddToolCall(record ToolCallRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, record)
	s.calls = trimCalls(s.calls, s.maxHistory*toolCallFactor)
	return s.persistLocked()
}

// RecentTurns returns up to n of the most recent turns, oldest first.
func (s *Store) RecentTurns(n int) []ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || len(s.turns) == 0 {
		return nil
	}
	if n > len(s.turns) {
		n = len(s.turns)
	}
	return append([]ConversationTurn(nil), s.turns[len(s.turns)-n:]...)
}

// TurnCount reports the number of retained turns.
func (s *Store) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// ClearSession drops all retained turns and tool call records, rotates the
// session identifier, and persists the now-empty store.
func (s *Store) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.calls = nil
	s.sessionID = uuid.NewString()
	s.logger.Info("session cleared", "session", s.sessionID)
	return s.persistLocked()
}

// Persist rewrites the history file from the current snapshot.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	file := historyFile{
		Conversations: s.turns,
		ToolCalls:     s.calls,
		LastUpdated:   time.Now(),
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("memctx: encode history: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("memctx: write history: %w", err)
	}
	return nil
}

func trimTurns(turns []ConversationTurn, limit int) []ConversationTurn {
	if len(turns) > limit {
		return append([]ConversationTurn(nil), turns[len(turns)-limit:]...)
	}
	return turns
}

func trimCalls(calls []ToolCallRecord, limit int) []ToolCallRecord {
	if len(calls) > limit {
		return append([]ToolCallRecord(nil), calls[len(calls)-limit:]...)
	}
	return calls
}
