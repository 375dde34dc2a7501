package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/gateway/ws"
	"github.com/dohr-michael/quill/internal/guard"
	"github.com/dohr-michael/quill/internal/storage"
)

// Server is the Quill gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	runner     *guard.Runner
	usage      *storage.UsageTracker
	host       string
	port       int
}

// NewServer creates a new gateway server. usage may be nil.
func NewServer(bus *events.Bus, runner *guard.Runner, usage *storage.UsageTracker, host string, port int) *Server {
	hub := ws.NewHub(bus)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{
		hub:    hub,
		bus:    bus,
		runner: runner,
		usage:  usage,
		host:   host,
		port:   port,
	}
	hub.SetThreadHandler(&wsThreadHandler{s: s})

	// Routes
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", hub.ServeWS)
	r.Get("/api/events", s.handleEvents)

	// API: threads
	r.Route("/api/threads", func(r chi.Router) {
		r.Get("/", s.handleListThreads)
		r.Get("/{id}", s.handleInspect)
		r.Post("/{id}", s.handleStartOrResume)
		r.Get("/{id}/history", s.handleHistory)
	})

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("Quill gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type eventJSON struct {
	ID        string             `json:"id"`
	ThreadID  string             `json:"thread_id,omitempty"`
	Type      string             `json:"type"`
	Timestamp string             `json:"timestamp"`
	Source    events.EventSource `json:"source"`
	Payload   map[string]any     `json:"payload"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	thread := r.URL.Query().Get("thread_id")

	history := s.bus.History(limit)

	result := make([]eventJSON, 0, len(history))
	for _, e := range history {
		if thread != "" && e.ThreadID != thread {
			continue
		}
		result = append(result, eventJSON{
			ID:        e.ID,
			ThreadID:  e.ThreadID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		})
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
