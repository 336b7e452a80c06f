package memctx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type exportFile struct {
	ExportTime    time.Time          `json:"export_time"`
	SessionID     string             `json:"session_id"`
	Conversations []ConversationTurn `json:"conversations"`
	ToolCalls     []ToolCallRecord   `json:"tool_calls"`
	Stats         UsageStats         `json:"stats"`
}

// DefaultExportPath returns a timestamped export file name.
func DefaultExportPath(now time.Time) string {
	return fmt.Sprintf("history_export_%s.json", now.Format("20060102_150405"))
}

// ExportHistory writes the full retained history plus usage stats to path,
// creating parent directories as needed.
func (s *Store) ExportHistory(path string) error {
	stats := s.UsageStats()

	s.mu.RLock()
	file := exportFile{
		ExportTime:    time.Now(),
		SessionID:     s.sessionID,
		Conversations: append([]ConversationTurn(nil), s.turns...),
		ToolCalls:     append([]ToolCallRecord(nil), s.calls...),
		Stats:         stats,
	}
	s.mu.RUnlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("memctx: create export dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("memctx: encode export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("memctx: write export: %w", err)
	}
	s.logger.Info("history exported", "path", path)
	return nil
}
