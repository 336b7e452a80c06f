package mcphost

import (
	"strings"
	"testing"
	"time"
)

func TestParseConfigAllTransports(t *testing.T) {
	t.Parallel()

	data := []byte(`
servers:
  - name: files
    transport: stdio
    command: npx
    args: ["@modelcontextprotocol/server-filesystem", "/tmp"]
    env:
      DEBUG: "1"
    timeout: 45s
  - name: wiki
    transport: sse
    url: http://localhost:8000/sse
    headers:
      Authorization: Bearer abc123
  - name: crawler
    transport: streamable_http
    url: http://localhost:8001/mcp
  - name: ticker
    transport: websocket
    url: ws://localhost:8002/ws
    enabled: false
`)

	configs, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(configs) != 4 {
		t.Fatalf("expected 4 servers, got %d", len(configs))
	}

	stdio, ok := configs[0].(*StdioServerConfig)
	if !ok {
		t.Fatalf("expected stdio config, got %T", configs[0])
	}
	if stdio.Name != "files" || stdio.Command != "npx" || len(stdio.Args) != 2 {
		t.Fatalf("stdio config not preserved: %#v", stdio)
	}
	if stdio.Env["DEBUG"] != "1" {
		t.Fatalf("stdio env not preserved: %#v", stdio.Env)
	}
	if stdio.Timeout != 45*time.Second {
		t.Fatalf("timeout = %v, expected 45s", stdio.Timeout)
	}
	if !stdio.enabled() {
		t.Fatalf("enabled should default to true")
	}
	if stdio.Kind() != TransportStdio {
		t.Fatalf("kind = %s", stdio.Kind())
	}

	sse, ok := configs[1].(*SSEServerConfig)
	if !ok {
		t.Fatalf("expected sse config, got %T", configs[1])
	}
	if sse.URL != "http://localhost:8000/sse" {
		t.Fatalf("sse url mismatch: %s", sse.URL)
	}
	if got := sse.Headers.Get("Authorization"); got != "Bearer abc123" {
		t.Fatalf("sse headers mismatch: %q", got)
	}

	stream, ok := configs[2].(*StreamableServerConfig)
	if !ok {
		t.Fatalf("expected streamable config, got %T", configs[2])
	}
	if stream.Kind() != TransportStreamable {
		t.Fatalf("kind = %s", stream.Kind())
	}

	ws, ok := configs[3].(*WebSocketServerConfig)
	if !ok {
		t.Fatalf("expected websocket config, got %T", configs[3])
	}
	if ws.enabled() {
		t.Fatalf("ticker should be disabled")
	}
}

func TestParseConfigTransportAliases(t *testing.T) {
	t.Parallel()

	cases := map[string]TransportKind{
		"pipe":            TransportStdio,
		"streamable-http": TransportStreamable,
		"http":            TransportStreamable,
		"ws":              TransportWebSocket,
		"socket":          TransportWebSocket,
	}
	for alias, kind := range cases {
		var doc string
		if kind == TransportStdio {
			doc = "servers:\n  - name: s\n    transport: " + alias + "\n    command: foo\n"
		} else {
			doc = "servers:\n  - name: s\n    transport: " + alias + "\n    url: http://x\n"
		}
		configs, err := ParseConfig([]byte(doc))
		if err != nil {
			t.Fatalf("alias %q: %v", alias, err)
		}
		if got := configs[0].Kind(); got != kind {
			t.Fatalf("alias %q resolved to %s, expected %s", alias, got, kind)
		}
	}
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing name",
			doc:  "servers:\n  - transport: stdio\n    command: foo\n",
			want: "name is required",
		},
		{
			name: "stdio without command",
			doc:  "servers:\n  - name: a\n    transport: stdio\n",
			want: "command is required",
		},
		{
			name: "sse without url",
			doc:  "servers:\n  - name: a\n    transport: sse\n",
			want: "url is required",
		},
		{
			name: "unknown transport",
			doc:  "servers:\n  - name: a\n    transport: carrier-pigeon\n    url: http://x\n",
			want: "unsupported transport",
		},
		{
			name: "duplicate name",
			doc:  "servers:\n  - name: a\n    transport: sse\n    url: http://x\n  - name: a\n    transport: sse\n    url: http://y\n",
			want: "duplicate server",
		},
		{
			name: "bad timeout",
			doc:  "servers:\n  - name: a\n    transport: stdio\n    command: foo\n    timeout: soon\n",
			want: "timeout",
		},
	}
	for _, tc := range cases {
		_, err := ParseConfig([]byte(tc.doc))
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}
