package mcphost

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TransportKind identifies how a configured server is reached.
type TransportKind string

const (
	TransportStdio      TransportKind = "stdio"
	TransportSSE        TransportKind = "sse"
	TransportStreamable TransportKind = "streamable_http"
	TransportWebSocket  TransportKind = "websocket"
)

// RPCDirection represents the direction of an observed JSON-RPC message.
type RPCDirection string

const (
	RPCDirectionSend    RPCDirection = "send"
	RPCDirectionReceive RPCDirection = "receive"
)

// RPCLogEvent encapsulates JSON-RPC traffic for custom logging.
type RPCLogEvent struct {
	Direction RPCDirection
	Message   []byte
	Server    string
}

// RPCLogger is invoked for each JSON-RPC message when traffic logging is
// enabled.
type RPCLogger func(RPCLogEvent)

// BaseServerConfig captures settings shared by all transport kinds.
type BaseServerConfig struct {
	// Name uniquely identifies the server. Tool ownership, summaries, and
	// log lines all reference it.
	Name string
	// Enabled defaults to true when nil; disabled servers are skipped
	// entirely during Initialize.
	Enabled *bool
	// Timeout bounds the connect handshake and each tool call for this
	// server. Zero falls back to the host defaults.
	Timeout time.Duration
	// LogRPC toggles JSON-RPC traffic logging for this server.
	LogRPC bool
	// RPCLogger overrides the host-level traffic logger.
	RPCLogger RPCLogger
}

func (b *BaseServerConfig) enabled() bool { return b.Enabled == nil || *b.Enabled }

// StdioServerConfig describes an MCP server launched as a subprocess and
// spoken to over its stdin/stdout pipes.
type StdioServerConfig struct {
	BaseServerConfig
	Command string
	Args    []string
	Env     map[string]string
}

func (c *StdioServerConfig) base() *BaseServerConfig { return &c.BaseServerConfig }

// Kind reports TransportStdio.
func (c *StdioServerConfig) Kind() TransportKind { return TransportStdio }

// SSEServerConfig describes an MCP server reachable over the HTTP+SSE
// transport.
type SSEServerConfig struct {
	BaseServerConfig
	URL        string
	Headers    http.Header
	HTTPClient *http.Client
}

func (c *SSEServerConfig) base() *BaseServerConfig { return &c.BaseServerConfig }

// Kind reports TransportSSE.
func (c *SSEServerConfig) Kind() TransportKind { return TransportSSE }

// StreamableServerConfig describes an MCP server reachable over the
// Streamable HTTP transport.
type StreamableServerConfig struct {
	BaseServerConfig
	URL        string
	Headers    http.Header
	HTTPClient *http.Client
	MaxRetries int
}

func (c *StreamableServerConfig) base() *BaseServerConfig { return &c.BaseServerConfig }

// Kind reports TransportStreamable.
func (c *StreamableServerConfig) Kind() TransportKind { return TransportStreamable }

// WebSocketServerConfig describes an MCP server reachable over a persistent
// websocket carrying one JSON-RPC message per text frame.
type WebSocketServerConfig struct {
	BaseServerConfig
	URL     string
	Headers http.Header
}

func (c *WebSocketServerConfig) base() *BaseServerConfig { return &c.BaseServerConfig }

// Kind reports TransportWebSocket.
func (c *WebSocketServerConfig) Kind() TransportKind { return TransportWebSocket }

// ServerConfig is implemented by all transport-specific configurations.
type ServerConfig interface {
	base() *BaseServerConfig
	Kind() TransportKind
}

type configFile struct {
	Servers []rawServer `yaml:"servers"`
}

type rawServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Enabled   *bool             `yaml:"enabled"`
	Timeout   string            `yaml:"timeout"`
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Env       map[string]string `yaml:"env"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
}

// LoadConfig reads a YAML server descriptor file and returns the configured
// servers in file order. Order matters: when two servers expose the same tool
// name, the later descriptor wins.
func LoadConfig(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mcphost: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML server descriptors. See LoadConfig.
func ParseConfig(data []byte) ([]ServerConfig, error) {
	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("mcphost: parse config: %w", err)
	}
	configs := make([]ServerConfig, 0, len(file.Servers))
	seen := make(map[string]struct{}, len(file.Servers))
	for i, raw := range file.Servers {
		cfg, err := raw.toConfig()
		if err != nil {
			return nil, fmt.Errorf("mcphost: server %d: %w", i, err)
		}
		name := cfg.base().Name
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("mcphost: duplicate server %q", name)
		}
		seen[name] = struct{}{}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (r rawServer) toConfig() (ServerConfig, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	base := BaseServerConfig{Name: r.Name, Enabled: r.Enabled}
	if r.Timeout != "" {
		timeout, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout for %q: %w", r.Name, err)
		}
		base.Timeout = timeout
	}
	headers := headerFromMap(r.Headers)

	switch normalizeTransport(r.Transport) {
	case TransportStdio:
		if r.Command == "" {
			return nil, fmt.Errorf("command is required for stdio server %q", r.Name)
		}
		return &StdioServerConfig{BaseServerConfig: base, Command: r.Command, Args: r.Args, Env: r.Env}, nil
	case TransportSSE:
		if r.URL == "" {
			return nil, fmt.Errorf("url is required for sse server %q", r.Name)
		}
		return &SSEServerConfig{BaseServerConfig: base, URL: r.URL, Headers: headers}, nil
	case TransportStreamable:
		if r.URL == "" {
			return nil, fmt.Errorf("url is required for streamable_http server %q", r.Name)
		}
		return &StreamableServerConfig{BaseServerConfig: base, URL: r.URL, Headers: headers}, nil
	case TransportWebSocket:
		if r.URL == "" {
			return nil, fmt.Errorf("url is required for websocket server %q", r.Name)
		}
		return &WebSocketServerConfig{BaseServerConfig: base, URL: r.URL, Headers: headers}, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q for server %q", r.Transport, r.Name)
	}
}

func normalizeTransport(transport string) TransportKind {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(transport, "-", "_"))) {
	case "stdio", "pipe":
		return TransportStdio
	case "sse":
		return TransportSSE
	case "streamable_http", "streamable", "http":
		return TransportStreamable
	case "websocket", "ws", "socket":
		return TransportWebSocket
	default:
		return TransportKind("")
	}
}

func headerFromMap(m map[string]string) http.Header {
	if len(m) == 0 {
		return nil
	}
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}
