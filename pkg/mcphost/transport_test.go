package mcphost

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestHeaderDecoratorInjectsHeadersAndSessionID(t *testing.T) {
	t.Parallel()

	tracker := newSessionIDTracker("")
	var seen http.Header
	client := decorateHTTPClient(&http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			seen = req.Header.Clone()
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("")),
				Header:     make(http.Header),
			}, nil
		}),
	}, http.Header{"Authorization": []string{"Bearer token"}}, tracker)

	req, err := http.NewRequest(http.MethodGet, "http://example.test/mcp", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	res.Body.Close()
	if got := seen.Get("Authorization"); got != "Bearer token" {
		t.Fatalf("Authorization = %q", got)
	}
	if got := seen.Get(sessionIDHeaderName); got != "" {
		t.Fatalf("session header should be absent before negotiation, got %q", got)
	}

	tracker.Set("session-123")
	req2, _ := http.NewRequest(http.MethodGet, "http://example.test/mcp", nil)
	res2, err := client.Do(req2)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	res2.Body.Close()
	if got := seen.Get(sessionIDHeaderName); got != "session-123" {
		t.Fatalf("session header = %q, expected session-123", got)
	}
}

func TestBuildTransportSelectsByKind(t *testing.T) {
	t.Parallel()

	tracker := newSessionIDTracker("")

	tr, err := buildTransport(&StdioServerConfig{
		BaseServerConfig: BaseServerConfig{Name: "files"},
		Command:          "server-binary",
		Args:             []string{"--serve"},
	}, tracker)
	if err != nil {
		t.Fatalf("stdio: %v", err)
	}
	if _, ok := tr.(*mcp.CommandTransport); !ok {
		t.Fatalf("stdio transport = %T", tr)
	}

	tr, err = buildTransport(&SSEServerConfig{
		BaseServerConfig: BaseServerConfig{Name: "wiki"},
		URL:              "http://localhost:8000/sse",
	}, tracker)
	if err != nil {
		t.Fatalf("sse: %v", err)
	}
	sse, ok := tr.(*mcp.SSEClientTransport)
	if !ok {
		t.Fatalf("sse transport = %T", tr)
	}
	if sse.Endpoint != "http://localhost:8000/sse" {
		t.Fatalf("sse endpoint = %s", sse.Endpoint)
	}

	tr, err = buildTransport(&StreamableServerConfig{
		BaseServerConfig: BaseServerConfig{Name: "crawler"},
		URL:              "http://localhost:8001/mcp",
		MaxRetries:       3,
	}, tracker)
	if err != nil {
		t.Fatalf("streamable: %v", err)
	}
	stream, ok := tr.(*mcp.StreamableClientTransport)
	if !ok {
		t.Fatalf("streamable transport = %T", tr)
	}
	if stream.MaxRetries != 3 {
		t.Fatalf("streamable retries = %d", stream.MaxRetries)
	}

	tr, err = buildTransport(&WebSocketServerConfig{
		BaseServerConfig: BaseServerConfig{Name: "ticker"},
		URL:              "ws://localhost:8002/ws",
	}, tracker)
	if err != nil {
		t.Fatalf("websocket: %v", err)
	}
	ws, ok := tr.(*wsTransport)
	if !ok {
		t.Fatalf("websocket transport = %T", tr)
	}
	if ws.url != "ws://localhost:8002/ws" {
		t.Fatalf("websocket url = %s", ws.url)
	}
}

func TestBuildTransportRejectsIncompleteConfigs(t *testing.T) {
	t.Parallel()

	tracker := newSessionIDTracker("")
	if _, err := buildTransport(&StdioServerConfig{BaseServerConfig: BaseServerConfig{Name: "x"}}, tracker); err == nil {
		t.Fatalf("expected error for stdio without command")
	}
	if _, err := buildTransport(&SSEServerConfig{BaseServerConfig: BaseServerConfig{Name: "x"}}, tracker); err == nil {
		t.Fatalf("expected error for sse without url")
	}
	if _, err := buildTransport(&WebSocketServerConfig{BaseServerConfig: BaseServerConfig{Name: "x"}}, tracker); err == nil {
		t.Fatalf("expected error for websocket without url")
	}
}
