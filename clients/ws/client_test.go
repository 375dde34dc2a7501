package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/quill/internal/events"
	wsprotocol "github.com/dohr-michael/quill/internal/gateway/ws"
)

type stubHandler struct{}

func (stubHandler) StartOrResume(_ context.Context, threadID, input string) (any, error) {
	return map[string]string{"thread_id": threadID, "phase": "parked"}, nil
}

func (stubHandler) Inspect(_ context.Context, threadID string) (any, error) {
	return map[string]string{"thread_id": threadID, "phase": "new"}, nil
}

func newClient(t *testing.T) (*events.Bus, *Client) {
	t.Helper()
	bus := events.NewBus(64)
	t.Cleanup(bus.Close)

	hub := wsprotocol.NewHub(bus)
	hub.SetThreadHandler(stubHandler{})
	t.Cleanup(hub.Close)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return bus, c
}

func TestClient_SubscribeAndReceive(t *testing.T) {
	bus, c := newClient(t)

	id, err := c.Subscribe("t1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	f, err := c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.ID != id || f.OK == nil || !*f.OK {
		t.Fatalf("unexpected subscribe response %+v", f)
	}

	bus.Publish(events.NewTypedEventWithThread(events.SourceEngine, events.StepStartedPayload{Step: "writer"}, "t2"))
	bus.Publish(events.NewTypedEventWithThread(events.SourceEngine, events.StepStartedPayload{Step: "writer"}, "t1"))

	f, err = c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Type != wsprotocol.FrameTypeEvent || f.ThreadID != "t1" {
		t.Fatalf("unexpected event %+v", f)
	}
}

func TestClient_StartOrResume(t *testing.T) {
	_, c := newClient(t)

	id, err := c.StartOrResume("t1", "topic")
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}
	if id != "req-1" {
		t.Errorf("request id = %q, want req-1", id)
	}
	f, err := c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.ID != id || !strings.Contains(string(f.Payload), `"parked"`) {
		t.Fatalf("unexpected response %+v", f)
	}

	next, _ := c.Inspect("t1")
	if next != "req-2" {
		t.Errorf("request ids should increase, got %q", next)
	}
}
