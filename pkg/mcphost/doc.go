// Package mcphost connects a chat host to multiple Model Context Protocol
// (MCP) servers at once. It dials each configured server over its own
// transport (stdio subprocess, SSE, Streamable HTTP, or websocket),
// aggregates every server's tools into a single registry, and routes tool
// calls back to the owning connection. Servers fail independently: an
// unreachable server is logged and skipped, and the host keeps serving the
// connections that came up.
package mcphost
