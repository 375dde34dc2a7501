package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/dohr-michael/quill/internal/events"
)

// ThreadHandler serves thread requests arriving over WebSocket.
type ThreadHandler interface {
	StartOrResume(ctx context.Context, threadID, input string) (any, error)
	Inspect(ctx context.Context, threadID string) (any, error)
}

// Client represents a connected WebSocket client.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu     sync.RWMutex
	thread string // empty receives every event
}

func (c *Client) wants(e events.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.thread == "" || c.thread == e.ThreadID
}

// Hub manages WebSocket clients and bridges them to the event bus.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	bus         *events.Bus
	handler     ThreadHandler
	unsubscribe func()
}

// NewHub creates a new WebSocket hub connected to an event bus.
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		bus:     bus,
	}

	// Bridge workflow events; internal LLM call events stay on the bus.
	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		if e.Type == events.EventLLMCall {
			return
		}
		frame, err := NewEventFrame(string(e.Type), e.ThreadID, e)
		if err != nil {
			slog.Error("marshal event frame", "error", err)
			return
		}
		data, err := MarshalFrame(frame)
		if err != nil {
			slog.Error("marshal frame", "error", err)
			return
		}
		h.broadcast(e, data)
	})

	return h
}

// SetThreadHandler wires thread requests.
func (h *Hub) SetThreadHandler(th ThreadHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = th
}

func (h *Hub) threadHandler() ThreadHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// broadcast sends data to every client interested in e.
func (h *Hub) broadcast(e events.Event, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(e) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

// register adds a client to the hub.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "clients", len(h.clients))
}

// unregister removes a client from the hub.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "clients", len(h.clients))
	}
}

// ServeWS handles a WebSocket upgrade and manages the client lifecycle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for dev
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    h,
		thread: r.URL.Query().Get("thread_id"),
	}

	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump reads frames from the WS connection and dispatches them.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}

		if frame.Type != FrameTypeRequest {
			slog.Debug("ws unknown frame type", "type", frame.Type)
			continue
		}
		c.handleRequest(ctx, frame)
	}
}

// handleRequest processes a request frame (method dispatch).
func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	var params ThreadParams
	if len(frame.Params) > 0 {
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
	}

	switch Method(frame.Method) {
	case MethodSubscribe:
		c.mu.Lock()
		c.thread = params.ThreadID
		c.mu.Unlock()
		c.sendOK(frame.ID, map[string]string{"thread_id": params.ThreadID})
		return
	case MethodStartOrResume, MethodInspect:
	default:
		c.sendError(frame.ID, "unknown method: "+frame.Method)
		return
	}

	th := c.hub.threadHandler()
	if th == nil {
		c.sendError(frame.ID, "workflow not available")
		return
	}
	if params.ThreadID == "" {
		c.sendError(frame.ID, "thread_id is required")
		return
	}

	if Method(frame.Method) == MethodInspect {
		res, err := th.Inspect(ctx, params.ThreadID)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return
		}
		c.sendOK(frame.ID, res)
		return
	}

	// Runs outlive the connection: a dropped client must not interrupt a pass.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		res, err := th.StartOrResume(runCtx, params.ThreadID, params.Input)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return
		}
		c.sendOK(frame.ID, res)
	}()
}

// writePump writes queued messages to the WS connection.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) sendOK(id string, payload any) {
	f, err := NewResponseFrame(id, true, payload, "")
	if err != nil {
		return
	}
	c.enqueue(f)
}

func (c *Client) sendError(id string, errMsg string) {
	f, err := NewResponseFrame(id, false, nil, errMsg)
	if err != nil {
		return
	}
	c.enqueue(f)
}

// enqueue drops the frame if the client is gone or too slow.
func (c *Client) enqueue(f Frame) {
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
