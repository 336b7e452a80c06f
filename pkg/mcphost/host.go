package mcphost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerStatus represents the lifecycle of a managed connection.
type ServerStatus string

const (
	StatusDisconnected ServerStatus = "disconnected"
	StatusConnecting   ServerStatus = "connecting"
	StatusConnected    ServerStatus = "connected"
)

// ServerSummary aggregates status information for a managed server.
type ServerSummary struct {
	Name      string
	Kind      TransportKind
	Status    ServerStatus
	Protocol  string
	ToolCount int
}

// Host supervises the configured server connections and owns the aggregated
// tool registry. Connections fail independently: a server that cannot be
// reached is logged and skipped, and the host keeps running on whatever
// subset came up.
type Host struct {
	opts Options

	mu    sync.RWMutex
	conns map[string]*serverConn
	order []string

	tools *toolIndex
}

type serverConn struct {
	config  ServerConfig
	kind    TransportKind
	timeout time.Duration

	client   *mcp.Client
	session  *mcp.ClientSession
	protocol string
	tools    []*mcp.Tool

	connecting bool
	lastErr    error
}

// New registers the enabled server configurations in order. No connection is
// attempted until Initialize.
func New(configs []ServerConfig, opts *Options) (*Host, error) {
	options := opts.withDefaults()
	h := &Host{
		opts:  options,
		conns: make(map[string]*serverConn, len(configs)),
		tools: newToolIndex(),
	}
	for _, cfg := range configs {
		base := cfg.base()
		if base.Name == "" {
			return nil, fmt.Errorf("mcphost: server name is required")
		}
		if _, dup := h.conns[base.Name]; dup {
			return nil, fmt.Errorf("mcphost: duplicate server %q", base.Name)
		}
		if !base.enabled() {
			options.Logger.Debug("server disabled", "server", base.Name)
			continue
		}
		h.conns[base.Name] = &serverConn{config: cfg, kind: cfg.Kind(), timeout: base.Timeout}
		h.order = append(h.order, base.Name)
	}
	return h, nil
}

// Servers returns the enabled server names in descriptor order.
func (h *Host) Servers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.order...)
}

// Initialize dials every enabled server concurrently, each under its own
// timeout, then builds the tool registry in descriptor order so collisions
// resolve toward the later descriptor. The returned error aggregates the
// per-server connect failures; the host remains fully usable with the
// connections that succeeded.
func (h *Host) Initialize(ctx context.Context) error {
	h.mu.RLock()
	names := append([]string(nil), h.order...)
	h.mu.RUnlock()

	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			if err := h.connect(ctx, name); err != nil {
				errs[i] = err
				h.opts.Logger.Warn("server unavailable", "server", name, "error", err)
			}
		}(i, name)
	}
	wg.Wait()

	h.mu.Lock()
	for _, name := range names {
		conn := h.conns[name]
		if conn.session == nil {
			continue
		}
		for _, c := range h.tools.Register(name, conn.tools) {
			h.opts.Logger.Warn("tool name collision",
				"tool", c.Name, "server", c.Winner, "replaces", c.Previous)
		}
		h.opts.Logger.Info("server connected",
			"server", name, "transport", string(conn.kind), "tools", len(conn.tools))
	}
	h.mu.Unlock()

	return errors.Join(errs...)
}

func (h *Host) connect(ctx context.Context, name string) error {
	h.mu.Lock()
	conn, ok := h.conns[name]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("mcphost: unknown server %q", name)
	}
	if conn.session != nil {
		h.mu.Unlock()
		return nil
	}
	conn.connecting = true
	cfg := conn.config
	timeout := conn.timeout
	h.mu.Unlock()
	if timeout <= 0 {
		timeout = h.opts.ConnectTimeout
	}
	defer func() {
		h.mu.Lock()
		conn.connecting = false
		h.mu.Unlock()
	}()

	tracker := newSessionIDTracker("")
	transport, err := buildTransport(cfg, tracker)
	if err != nil {
		return h.recordConnectError(conn, name, err)
	}
	if logger := h.resolveRPCLogger(cfg.base()); logger != nil {
		transport = &loggingTransport{server: name, delegate: transport, logger: logger}
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    h.opts.ClientName,
		Version: h.opts.ClientVersion,
	}, nil)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	session, err := client.Connect(dialCtx, transport, nil)
	if err != nil {
		return h.recordConnectError(conn, name, err)
	}
	tracker.Set(session.ID())

	protocol := ""
	if res := session.InitializeResult(); res != nil {
		protocol = res.ProtocolVersion
	}

	listCtx, cancelList := context.WithTimeout(ctx, timeout)
	defer cancelList()
	tools, err := listAllTools(listCtx, session)
	if err != nil {
		_ = session.Close()
		return h.recordConnectError(conn, name, err)
	}

	h.mu.Lock()
	conn.client = client
	conn.session = session
	conn.protocol = protocol
	conn.tools = tools
	conn.lastErr = nil
	h.mu.Unlock()

	go h.monitorSession(name, session)
	return nil
}

func (h *Host) recordConnectError(conn *serverConn, name string, err error) error {
	cerr := &ConnectError{Server: name, Err: err}
	h.mu.Lock()
	conn.lastErr = cerr
	h.mu.Unlock()
	return cerr
}

func listAllTools(ctx context.Context, session *mcp.ClientSession) ([]*mcp.Tool, error) {
	var tools []*mcp.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			if isMethodUnavailableError(err, "tools/list") {
				return nil, nil
			}
			return nil, err
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

// monitorSession observes session termination. Connection loss after
// initialization is terminal: the tools stay registered, and dispatching to
// them fails with a ToolCallError until shutdown.
func (h *Host) monitorSession(name string, session *mcp.ClientSession) {
	err := session.Wait()
	h.mu.Lock()
	conn, ok := h.conns[name]
	if ok && conn.session == session {
		conn.session = nil
		conn.client = nil
		conn.lastErr = err
	} else {
		ok = false
	}
	h.mu.Unlock()
	if ok && err != nil {
		h.opts.Logger.Warn("server connection lost", "server", name, "error", err)
	}
}

// Tools returns the aggregated tool snapshot in registration order.
func (h *Host) Tools() []*mcp.Tool { return h.tools.Tools() }

// ToolNames returns the aggregated tool names in registration order.
func (h *Host) ToolNames() []string { return h.tools.Names() }

// Dispatch routes a tool call to the connection owning the name and returns
// the flattened text content. A name missing from the registry yields
// ErrToolNotFound; transport and tool-reported failures yield a
// *ToolCallError, with any partial text preserved in the first return value.
func (h *Host) Dispatch(ctx context.Context, toolName string, args map[string]any) (string, error) {
	target, ok := h.tools.Target(toolName)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrToolNotFound, toolName)
	}

	h.mu.RLock()
	conn, okc := h.conns[target.Server]
	var session *mcp.ClientSession
	var timeout time.Duration
	if okc {
		session = conn.session
		timeout = conn.timeout
	}
	h.mu.RUnlock()
	if session == nil {
		return "", &ToolCallError{Tool: toolName, Server: target.Server, Err: errors.New("server not connected")}
	}
	if timeout <= 0 {
		timeout = h.opts.CallTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := session.CallTool(callCtx, &mcp.CallToolParams{Name: target.Tool.Name, Arguments: args})
	if err != nil {
		return "", &ToolCallError{Tool: toolName, Server: target.Server, Err: err}
	}
	text := flattenContent(res.Content)
	if res.IsError {
		msg := text
		if msg == "" {
			msg = "tool reported an error"
		}
		return text, &ToolCallError{Tool: toolName, Server: target.Server, Err: errors.New(msg)}
	}
	return text, nil
}

func flattenContent(blocks []mcp.Content) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		switch b := block.(type) {
		case *mcp.TextContent:
			parts = append(parts, b.Text)
		default:
			if data, err := json.Marshal(block); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// Summaries returns status snapshots for all enabled servers in descriptor
// order, with an up-to-date status derived from a lightweight ping.
func (h *Host) Summaries(ctx context.Context) []ServerSummary {
	h.mu.RLock()
	summaries := make([]ServerSummary, 0, len(h.order))
	for _, name := range h.order {
		conn := h.conns[name]
		summaries = append(summaries, ServerSummary{
			Name:      name,
			Kind:      conn.kind,
			Protocol:  conn.protocol,
			ToolCount: len(conn.tools),
		})
	}
	h.mu.RUnlock()

	for i := range summaries {
		summaries[i].Status = h.statusByPing(ctx, summaries[i].Name)
	}
	return summaries
}

func (h *Host) statusByPing(ctx context.Context, name string) ServerStatus {
	h.mu.RLock()
	conn, ok := h.conns[name]
	if !ok {
		h.mu.RUnlock()
		return StatusDisconnected
	}
	if conn.connecting {
		h.mu.RUnlock()
		return StatusConnecting
	}
	session := conn.session
	h.mu.RUnlock()
	if session == nil {
		return StatusDisconnected
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := session.Ping(pingCtx, nil); err != nil {
		return StatusDisconnected
	}
	return StatusConnected
}

// Shutdown closes every live connection, tolerating individual failures.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	sessions := make(map[string]*mcp.ClientSession)
	for name, conn := range h.conns {
		if conn.session != nil {
			sessions[name] = conn.session
			conn.session = nil
			conn.client = nil
		}
	}
	h.mu.Unlock()

	var errs []error
	for name, session := range sessions {
		if err := closeSession(ctx, session); err != nil {
			errs = append(errs, fmt.Errorf("mcphost: close %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func closeSession(ctx context.Context, session *mcp.ClientSession) error {
	done := make(chan error, 1)
	go func() { done <- session.Close() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (h *Host) resolveRPCLogger(base *BaseServerConfig) RPCLogger {
	if base.RPCLogger != nil {
		return base.RPCLogger
	}
	if h.opts.RPCLogger != nil {
		return h.opts.RPCLogger
	}
	if base.LogRPC || h.opts.LogRPC {
		logger := h.opts.Logger
		return func(event RPCLogEvent) {
			logger.Debug("jsonrpc",
				"server", event.Server,
				"direction", string(event.Direction),
				"message", string(event.Message))
		}
	}
	return nil
}

func isMethodUnavailableError(err error, method string) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	if !(strings.Contains(lower, "method not found") ||
		strings.Contains(lower, "not implemented") ||
		strings.Contains(lower, "unsupported") ||
		strings.Contains(lower, "does not support") ||
		strings.Contains(lower, "unimplemented")) {
		return false
	}
	method = strings.ToLower(method)
	if strings.Contains(lower, method) {
		return true
	}
	for _, part := range strings.FieldsFunc(method, func(r rune) bool {
		return r == '/' || r == ':' || r == '.' || r == '_' || r == '-'
	}) {
		if part != "" && strings.Contains(lower, part) {
			return true
		}
	}
	return true
}
