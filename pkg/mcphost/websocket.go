package mcphost

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// wsReadLimit caps a single inbound frame. Tool results can be large, so this
// is well above the library default.
const wsReadLimit = 16 << 20

// wsTransport carries MCP JSON-RPC over a persistent websocket, one message
// per text frame. The SDK client drives the handshake as the first exchange
// over the open socket.
type wsTransport struct {
	url     string
	headers http.Header
}

func (t *wsTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{
		Subprotocols: []string{"mcp"},
		HTTPHeader:   t.headers,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(wsReadLimit)
	return &wsConnection{conn: conn}, nil
}

type wsConnection struct {
	conn *websocket.Conn

	// writeMu serializes frames; the SDK may issue concurrent writes.
	writeMu sync.Mutex
}

func (c *wsConnection) SessionID() string { return "" }

func (c *wsConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return jsonrpc.DecodeMessage(data)
}

func (c *wsConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConnection) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
