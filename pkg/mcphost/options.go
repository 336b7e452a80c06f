package mcphost

import (
	"log/slog"
	"time"
)

// Options configure a Host instance.
type Options struct {
	// ClientName is the implementation name advertised to every server
	// during the MCP handshake. Defaults to "mcphost".
	ClientName string
	// ClientVersion is the semantic version reported to servers.
	ClientVersion string
	// ConnectTimeout bounds the dial plus handshake for servers whose
	// configuration omits an explicit timeout. Defaults to 30s.
	ConnectTimeout time.Duration
	// CallTimeout bounds each tool invocation for servers without an
	// explicit timeout. Defaults to 60s.
	CallTimeout time.Duration
	// Logger receives structured diagnostics.
	Logger *slog.Logger
	// LogRPC toggles JSON-RPC traffic logging for all servers unless
	// overridden per server.
	LogRPC bool
	// RPCLogger provides a custom sink for JSON-RPC traffic; it takes
	// precedence over LogRPC.
	RPCLogger RPCLogger
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.ClientName == "" {
		opts.ClientName = "mcphost"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "1.0.0"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}
