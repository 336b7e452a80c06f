package mcphost

import (
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// toolTarget resolves an aggregated tool name to the connection that owns it.
type toolTarget struct {
	Server string
	Tool   *mcp.Tool
}

// toolCollision records a name registered by more than one server. The later
// registration wins.
type toolCollision struct {
	Name     string
	Previous string
	Winner   string
}

// toolIndex is the aggregated tool registry. Names keep the position of their
// first registration; a collision swaps the target in place.
type toolIndex struct {
	mu      sync.RWMutex
	order   []string
	targets map[string]toolTarget
}

func newToolIndex() *toolIndex {
	return &toolIndex{targets: make(map[string]toolTarget)}
}

func (x *toolIndex) Register(server string, tools []*mcp.Tool) []toolCollision {
	x.mu.Lock()
	defer x.mu.Unlock()
	var collisions []toolCollision
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		if prev, exists := x.targets[tool.Name]; exists {
			collisions = append(collisions, toolCollision{Name: tool.Name, Previous: prev.Server, Winner: server})
		} else {
			x.order = append(x.order, tool.Name)
		}
		x.targets[tool.Name] = toolTarget{Server: server, Tool: tool}
	}
	return collisions
}

func (x *toolIndex) Target(name string) (toolTarget, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	t, ok := x.targets[name]
	return t, ok
}

func (x *toolIndex) Tools() []*mcp.Tool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	tools := make([]*mcp.Tool, 0, len(x.order))
	for _, name := range x.order {
		tools = append(tools, x.targets[name].Tool)
	}
	return tools
}

func (x *toolIndex) Names() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]string(nil), x.order...)
}
