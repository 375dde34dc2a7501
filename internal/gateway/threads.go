package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dohr-michael/quill/internal/checkpoint"
	"github.com/dohr-michael/quill/internal/guard"
	"github.com/dohr-michael/quill/internal/storage"
	"github.com/dohr-michael/quill/internal/workflow"
)

// ThreadView is the JSON shape of a thread returned by the API: the full
// state snapshot flattened next to the frontier.
type ThreadView struct {
	ThreadID string         `json:"thread_id"`
	Phase    workflow.Phase `json:"phase"`
	Pending  string         `json:"pending,omitempty"`
	Seq      int64          `json:"seq"`
	Next     []string       `json:"next"`
	checkpoint.State
	UpdatedAt time.Time           `json:"updated_at,omitzero"`
	Usage     *storage.TokenUsage `json:"usage,omitempty"`
}

func (s *Server) view(res *workflow.Result) ThreadView {
	cp := res.Checkpoint
	v := ThreadView{
		ThreadID:  res.ThreadID,
		Phase:     res.Phase,
		Pending:   res.Pending,
		Seq:       cp.Seq,
		Next:      cp.Next,
		State:     cp.State,
		UpdatedAt: cp.UpdatedAt,
	}
	if v.Next == nil {
		v.Next = []string{}
	}
	if v.Messages == nil {
		v.Messages = []string{}
	}
	if s.usage != nil {
		if u := s.usage.Usage(res.ThreadID); u.Calls > 0 {
			v.Usage = &u
		}
	}
	return v
}

// threadID reads {id}, undoing percent-encoding for IDs that contain slashes.
func threadID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "id")
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid thread id %q: %w", raw, err)
	}
	if id == "" {
		return "", errors.New("thread id is required")
	}
	return id, nil
}

// statusFor maps workflow errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, guard.ErrThreadBusy):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrThreadTerminated):
		return http.StatusGone
	case errors.Is(err, workflow.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, checkpoint.ErrStoreIO):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	list, err := s.runner.Engine().Store().List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if list == nil {
		list = []checkpoint.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	id, err := threadID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.runner.Inspect(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if res.Phase == workflow.PhaseNew {
		writeError(w, http.StatusNotFound, fmt.Errorf("thread %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, s.view(res))
}

type startOrResumeRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleStartOrResume(w http.ResponseWriter, r *http.Request) {
	id, err := threadID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var body startOrResumeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	// A client disconnect must not interrupt the pass.
	res, err := s.runner.StartOrResume(context.WithoutCancel(r.Context()), id, body.Input)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(res))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := threadID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	history, err := s.runner.Engine().Store().History(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if history == nil {
		history = []checkpoint.Checkpoint{}
	}
	writeJSON(w, http.StatusOK, history)
}

// wsThreadHandler serves thread requests from WebSocket clients.
type wsThreadHandler struct {
	s *Server
}

func (h *wsThreadHandler) StartOrResume(ctx context.Context, threadID, input string) (any, error) {
	res, err := h.s.runner.StartOrResume(ctx, threadID, input)
	if err != nil {
		return nil, err
	}
	return h.s.view(res), nil
}

func (h *wsThreadHandler) Inspect(ctx context.Context, threadID string) (any, error) {
	res, err := h.s.runner.Inspect(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return h.s.view(res), nil
}
