// Package heartbeat lets a running gateway announce which checkpoint store it
// serves, so CLI commands can tell when they share a store with a live process.
package heartbeat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status represents the liveness state of the gateway.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// DefaultInterval is how often the heartbeat file is refreshed.
const DefaultInterval = 30 * time.Second

// Heartbeat is the data written to the heartbeat file.
type Heartbeat struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	Storage   string    `json:"storage"` // "<driver>:<path>"
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// Uptime returns how long the writer had been running at Timestamp.
func (hb Heartbeat) Uptime() time.Duration {
	return hb.Timestamp.Sub(hb.StartedAt).Truncate(time.Second)
}

// Writer periodically refreshes a heartbeat file.
type Writer struct {
	path     string
	interval time.Duration
	info     Heartbeat

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewWriter creates a heartbeat writer for the gateway at addr serving storage.
func NewWriter(path, addr, storage string) *Writer {
	return &Writer{
		path:     path,
		interval: DefaultInterval,
		info:     Heartbeat{PID: os.Getpid(), Addr: addr, Storage: storage},
	}
}

// Start writes the first heartbeat synchronously and then refreshes it in the background.
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		return nil
	}

	w.info.StartedAt = time.Now()
	if err := w.write(); err != nil {
		return err
	}

	w.stop = make(chan struct{})
	w.stopped = make(chan struct{})
	go func(stop, stopped chan struct{}) {
		defer close(stopped)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.mu.Lock()
				err := w.write()
				w.mu.Unlock()
				if err != nil {
					slog.Warn("heartbeat write failed", "path", w.path, "error", err)
				}
			case <-stop:
				return
			}
		}
	}(w.stop, w.stopped)
	return nil
}

// Stop halts the refresh loop and removes the heartbeat file.
func (w *Writer) Stop() {
	w.mu.Lock()
	stop, stopped := w.stop, w.stopped
	w.stop = nil
	w.mu.Unlock()
	if stop == nil {
		return
	}

	close(stop)
	<-stopped
	os.Remove(w.path)
}

// Current returns the last heartbeat content.
func (w *Writer) Current() Heartbeat {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.info
}

// write must be called with mu held.
func (w *Writer) write() error {
	w.info.Timestamp = time.Now()
	data, err := json.MarshalIndent(w.info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("heartbeat dir: %w", err)
	}

	// Atomic write: tmp + rename
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return os.Rename(tmp, w.path)
}

// Check reads a heartbeat file and returns the liveness status.
// A heartbeat older than maxAge is stale.
func Check(path string, maxAge time.Duration) (Status, *Heartbeat, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return StatusDead, nil, nil
	}
	if err != nil {
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return StatusDead, nil, fmt.Errorf("unmarshal heartbeat: %w", err)
	}

	if time.Since(hb.Timestamp) > maxAge {
		return StatusStale, &hb, nil
	}
	return StatusAlive, &hb, nil
}
