package memctx

import "time"

// ToolStats aggregates the usage of a single tool.
type ToolStats struct {
	Total       int       `json:"total"`
	Success     int       `json:"success"`
	SuccessRate float64   `json:"success_rate"`
	LastUsed    time.Time `json:"last_used"`
}

// UsageStats aggregates tool usage across the retained records.
type UsageStats struct {
	TotalCalls  int                  `json:"total_calls"`
	SuccessRate float64              `json:"success_rate"`
	ToolStats   map[string]ToolStats `json:"tool_stats"`
}

// UsageStats computes per-tool and global success rates over the retained
// tool call records. An empty store yields zero totals and an empty map.
func (s *Store) UsageStats() UsageStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := UsageStats{ToolStats: make(map[string]ToolStats)}
	if len(s.calls) == 0 {
		return stats
	}

	successful := 0
	for _, call := range s.calls {
		ts := stats.ToolStats[call.ToolName]
		ts.Total++
		if call.Success {
			ts.Success++
			successful++
		}
		if call.Timestamp.After(ts.LastUsed) {
			ts.LastUsed = call.Timestamp
		}
		stats.ToolStats[call.ToolName] = ts
	}
	for name, ts := range stats.ToolStats {
		ts.SuccessRate = float64(ts.Success) / float64(ts.Total)
		stats.ToolStats[name] = ts
	}
	stats.TotalCalls = len(s.calls)
	stats.SuccessRate = float64(successful) / float64(len(s.calls))
	return stats
}
