package ws

import (
	"encoding/json"
	"testing"
)

func TestMarshalUnmarshal_RequestFrame(t *testing.T) {
	params, _ := json.Marshal(ThreadParams{ThreadID: "t1", Input: "hello"})
	orig := Frame{
		Type:   FrameTypeRequest,
		ID:     "req-1",
		Method: string(MethodStartOrResume),
		Params: params,
	}

	data, err := MarshalFrame(orig)
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}

	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}

	if got.Type != FrameTypeRequest {
		t.Fatalf("expected type %q, got %q", FrameTypeRequest, got.Type)
	}
	if got.ID != "req-1" {
		t.Fatalf("expected id %q, got %q", "req-1", got.ID)
	}
	if got.Method != string(MethodStartOrResume) {
		t.Fatalf("expected method %q, got %q", MethodStartOrResume, got.Method)
	}

	var p ThreadParams
	if err := json.Unmarshal(got.Params, &p); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if p.ThreadID != "t1" || p.Input != "hello" {
		t.Fatalf("unexpected params %+v", p)
	}
}

func TestMarshalUnmarshal_ResponseFrame(t *testing.T) {
	ok := true
	payload, _ := json.Marshal(map[string]string{"phase": "parked"})
	orig := Frame{
		Type:    FrameTypeResponse,
		ID:      "req-1",
		OK:      &ok,
		Payload: payload,
	}

	data, err := MarshalFrame(orig)
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}

	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}

	if got.Type != FrameTypeResponse {
		t.Fatalf("expected type %q, got %q", FrameTypeResponse, got.Type)
	}
	if got.OK == nil || !*got.OK {
		t.Fatal("expected ok=true")
	}
}

func TestMarshalUnmarshal_EventFrame(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"step": "writer"})
	orig := Frame{
		Type:      FrameTypeEvent,
		Event:     "workflow.step.started",
		ThreadID:  "thread-abc",
		Payload:   payload,
	}

	data, err := MarshalFrame(orig)
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}

	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}

	if got.Type != FrameTypeEvent {
		t.Fatalf("expected type %q, got %q", FrameTypeEvent, got.Type)
	}
	if got.Event != "workflow.step.started" {
		t.Fatalf("expected event %q, got %q", "workflow.step.started", got.Event)
	}
	if got.ThreadID != "thread-abc" {
		t.Fatalf("expected thread_id %q, got %q", "thread-abc", got.ThreadID)
	}
}

func TestNewEventFrame(t *testing.T) {
	f, err := NewEventFrame("workflow.thread.parked", "thread-42", map[string]string{"pending": "human_review"})
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}
	if f.Type != FrameTypeEvent {
		t.Fatalf("expected type %q, got %q", FrameTypeEvent, f.Type)
	}
	if f.Event != "workflow.thread.parked" {
		t.Fatalf("expected event %q, got %q", "workflow.thread.parked", f.Event)
	}
	if f.ThreadID != "thread-42" {
		t.Fatalf("expected thread_id %q, got %q", "thread-42", f.ThreadID)
	}

	var p map[string]string
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p["pending"] != "human_review" {
		t.Fatalf("expected payload.pending %q, got %q", "human_review", p["pending"])
	}
}

func TestNewResponseFrame_OK(t *testing.T) {
	f, err := NewResponseFrame("req-5", true, map[string]string{"status": "done"}, "")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}
	if f.Type != FrameTypeResponse {
		t.Fatalf("expected type %q, got %q", FrameTypeResponse, f.Type)
	}
	if f.ID != "req-5" {
		t.Fatalf("expected id %q, got %q", "req-5", f.ID)
	}
	if f.OK == nil || !*f.OK {
		t.Fatal("expected ok=true")
	}
	if f.Error != "" {
		t.Fatalf("expected no error, got %q", f.Error)
	}

	var p map[string]string
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p["status"] != "done" {
		t.Fatalf("expected payload.status %q, got %q", "done", p["status"])
	}
}

func TestNewResponseFrame_Error(t *testing.T) {
	f, err := NewResponseFrame("req-6", false, nil, "something went wrong")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}
	if f.OK == nil || *f.OK {
		t.Fatal("expected ok=false")
	}
	if f.Error != "something went wrong" {
		t.Fatalf("expected error %q, got %q", "something went wrong", f.Error)
	}
	if f.Payload != nil {
		t.Fatalf("expected nil payload, got %s", string(f.Payload))
	}
}
