package mcphost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const sessionIDHeaderName = "Mcp-Session-Id"

// transportProvider lets a configuration supply a ready-made transport,
// bypassing the kind switch. In-process tests use it to dial in-memory
// servers.
type transportProvider interface {
	transport() mcp.Transport
}

func buildTransport(cfg ServerConfig, tracker *sessionIDTracker) (mcp.Transport, error) {
	if p, ok := cfg.(transportProvider); ok {
		return p.transport(), nil
	}
	switch c := cfg.(type) {
	case *StdioServerConfig:
		if c.Command == "" {
			return nil, fmt.Errorf("mcphost: command missing for %q", c.Name)
		}
		cmd := exec.Command(c.Command, c.Args...)
		if len(c.Env) > 0 {
			env := os.Environ()
			for k, v := range c.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			cmd.Env = env
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case *SSEServerConfig:
		if c.URL == "" {
			return nil, fmt.Errorf("mcphost: url missing for %q", c.Name)
		}
		return &mcp.SSEClientTransport{
			Endpoint:   c.URL,
			HTTPClient: decorateHTTPClient(c.HTTPClient, c.Headers, tracker),
		}, nil
	case *StreamableServerConfig:
		if c.URL == "" {
			return nil, fmt.Errorf("mcphost: url missing for %q", c.Name)
		}
		return &mcp.StreamableClientTransport{
			Endpoint:   c.URL,
			HTTPClient: decorateHTTPClient(c.HTTPClient, c.Headers, tracker),
			MaxRetries: c.MaxRetries,
		}, nil
	case *WebSocketServerConfig:
		if c.URL == "" {
			return nil, fmt.Errorf("mcphost: url missing for %q", c.Name)
		}
		return &wsTransport{url: c.URL, headers: cloneHeader(c.Headers)}, nil
	default:
		return nil, fmt.Errorf("mcphost: unsupported config for %q", cfg.base().Name)
	}
}

// decorateHTTPClient clones the base client so the injected headers and the
// negotiated session id ride along on every request without mutating the
// caller's client.
func decorateHTTPClient(base *http.Client, headers http.Header, tracker *sessionIDTracker) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	clone := *base
	clone.Transport = &headerDecorator{
		next:    defaultRoundTripper(base.Transport),
		headers: cloneHeader(headers),
		tracker: tracker,
	}
	return &clone
}

type headerDecorator struct {
	next    http.RoundTripper
	headers http.Header
	tracker *sessionIDTracker
}

func (d *headerDecorator) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for k, values := range d.headers {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if d.tracker != nil {
		if sessionID := d.tracker.Value(); sessionID != "" {
			req.Header.Set(sessionIDHeaderName, sessionID)
		}
	}
	return d.next.RoundTrip(req)
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}

func cloneHeader(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	clone := make(http.Header, len(h))
	for k, values := range h {
		clone[k] = append([]string(nil), values...)
	}
	return clone
}

type sessionIDTracker struct {
	mu    sync.RWMutex
	value string
}

func newSessionIDTracker(initial string) *sessionIDTracker {
	return &sessionIDTracker{value: initial}
}

func (s *sessionIDTracker) Set(value string) {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
}

func (s *sessionIDTracker) Value() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

type loggingTransport struct {
	server   string
	delegate mcp.Transport
	logger   RPCLogger
}

func (t *loggingTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.delegate.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &loggingConnection{server: t.server, delegate: conn, logger: t.logger}, nil
}

type loggingConnection struct {
	server   string
	delegate mcp.Connection
	logger   RPCLogger
	mu       sync.Mutex
}

func (c *loggingConnection) SessionID() string { return c.delegate.SessionID() }

func (c *loggingConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	msg, err := c.delegate.Read(ctx)
	if err == nil {
		c.emit(RPCDirectionReceive, msg)
	}
	return msg, err
}

func (c *loggingConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	if err := c.delegate.Write(ctx, msg); err != nil {
		return err
	}
	c.emit(RPCDirectionSend, msg)
	return nil
}

func (c *loggingConnection) Close() error { return c.delegate.Close() }

func (c *loggingConnection) emit(direction RPCDirection, msg jsonrpc.Message) {
	if c.logger == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	encoded, err := json.Marshal(msg)
	if err != nil {
		encoded = []byte(err.Error())
	}
	c.logger(RPCLogEvent{Direction: direction, Message: encoded, Server: c.server})
}
