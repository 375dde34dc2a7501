// Package ws provides a WebSocket client for the Quill gateway.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/coder/websocket"

	wsprotocol "github.com/dohr-michael/quill/internal/gateway/ws"
)

// Client is a WebSocket client for the Quill gateway.
type Client struct {
	conn   *websocket.Conn
	reqSeq uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// Subscribe restricts the event stream to one thread. Empty means all threads.
func (c *Client) Subscribe(threadID string) (string, error) {
	return c.send(wsprotocol.MethodSubscribe, wsprotocol.ThreadParams{ThreadID: threadID})
}

// StartOrResume asks the gateway to run one pass of a thread. The returned
// request ID matches the response frame sent once the pass settles.
func (c *Client) StartOrResume(threadID, input string) (string, error) {
	return c.send(wsprotocol.MethodStartOrResume, wsprotocol.ThreadParams{ThreadID: threadID, Input: input})
}

// Inspect requests the state of a thread.
func (c *Client) Inspect(threadID string) (string, error) {
	return c.send(wsprotocol.MethodInspect, wsprotocol.ThreadParams{ThreadID: threadID})
}

func (c *Client) send(method wsprotocol.Method, params wsprotocol.ThreadParams) (string, error) {
	seq := atomic.AddUint64(&c.reqSeq, 1)
	raw, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	frame := wsprotocol.Frame{
		Type:   wsprotocol.FrameTypeRequest,
		ID:     fmt.Sprintf("req-%d", seq),
		Method: string(method),
		Params: raw,
	}

	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return "", err
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		return "", err
	}
	return frame.ID, nil
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
