package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/storage/dirstore"
)

// EventLogger persists bus events to JSONL files, one file per thread.
type EventLogger struct {
	mu          sync.Mutex
	dir         string
	unsubscribe func()
}

// NewEventLogger creates an EventLogger that subscribes to all bus events
// and appends them to dir/<thread>.jsonl.
func NewEventLogger(dir string, bus *events.Bus) *EventLogger {
	el := &EventLogger{dir: dir}
	el.unsubscribe = bus.Subscribe(el.handleEvent)
	return el
}

// Close unsubscribes the logger from the event bus.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
}

func (el *EventLogger) handleEvent(e events.Event) {
	if err := el.writeEvent(e); err != nil {
		slog.Debug("event log write failed", "thread_id", e.ThreadID, "type", e.Type, "error", err)
	}
}

func (el *EventLogger) writeEvent(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	path := el.LogPath(e.ThreadID)

	el.mu.Lock()
	defer el.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// LogPath returns the JSONL file receiving events for threadID.
func (el *EventLogger) LogPath(threadID string) string {
	if threadID == "" {
		return filepath.Join(el.dir, "_global.jsonl")
	}
	return filepath.Join(el.dir, dirstore.SafeName(threadID)+".jsonl")
}
