package mcphost

import (
	"errors"
	"fmt"
)

// ErrToolNotFound reports a dispatch against a tool name absent from the
// aggregated registry.
var ErrToolNotFound = errors.New("mcphost: tool not found")

// ConnectError wraps the failure to establish a single server connection.
// One server's ConnectError never prevents the rest from coming up.
type ConnectError struct {
	Server string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("mcphost: connect %q: %v", e.Server, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ToolCallError wraps a failure while invoking a tool on its owning server,
// including calls against a server whose connection has since been lost.
type ToolCallError struct {
	Tool   string
	Server string
	Err    error
}

func (e *ToolCallError) Error() string {
	return fmt.Sprintf("mcphost: call %q on %q: %v", e.Tool, e.Server, e.Err)
}

func (e *ToolCallError) Unwrap() error { return e.Err }
