package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dohr-michael/quill/internal/checkpoint"
	"github.com/dohr-michael/quill/internal/events"
)

// DefaultMaxSteps bounds the supersteps of a single call.
const DefaultMaxSteps = 50

// Commit sources that are not step outputs.
const (
	sourceInput   = "input"
	sourceAdvance = "advance"
)

// Result is what a caller sees after a call returns.
type Result struct {
	ThreadID   string                 `json:"thread_id"`
	Phase      Phase                  `json:"phase"`
	Pending    string                 `json:"pending"`
	Checkpoint *checkpoint.Checkpoint `json:"checkpoint"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventBus publishes step and thread lifecycle events on bus.
func WithEventBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithMaxSteps overrides DefaultMaxSteps. Values below 1 are ignored, and the
// graph's MinSupersteps always wins over a smaller limit.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// Engine runs threads of one graph against one store. It does not serialize
// calls: exactly one call per thread must be in flight at a time.
type Engine struct {
	graph    *Graph
	store    checkpoint.Store
	bus      *events.Bus
	maxSteps int
}

// NewEngine creates an Engine.
func NewEngine(graph *Graph, store checkpoint.Store, opts ...Option) *Engine {
	e := &Engine{graph: graph, store: store, maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(e)
	}
	e.maxSteps = max(e.maxSteps, graph.MinSupersteps())
	return e
}

// Graph returns the topology the engine interprets.
func (e *Engine) Graph() *Graph { return e.graph }

// Store returns the backing checkpoint store.
func (e *Engine) Store() checkpoint.Store { return e.store }

// Inspect returns the current checkpoint of a thread without advancing it.
func (e *Engine) Inspect(ctx context.Context, threadID string) (*Result, error) {
	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", threadID, err)
	}
	return e.result(cp), nil
}

// StartOrResume starts a new thread with input as its task, or resumes an
// existing one with input as human feedback, and runs it until it parks,
// terminates or fails.
func (e *Engine) StartOrResume(ctx context.Context, threadID, input string) (*Result, error) {
	ctx = events.ContextWithThreadID(ctx, threadID)
	input = strings.TrimSpace(input)

	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", threadID, err)
	}

	resume := false
	switch {
	case cp.Terminated():
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrThreadTerminated)

	case cp.IsNew():
		if input == "" {
			return nil, fmt.Errorf("start %s: %w", threadID, ErrEmptyInput)
		}
		cp, err = e.store.Commit(ctx, threadID, checkpoint.Write{
			Source: sourceInput,
			Update: checkpoint.Update{
				Task:          checkpoint.Ptr(input),
				RevisionCount: checkpoint.Ptr(0),
				Messages:      []string{"Task received: " + input},
			},
			Advance: true,
			Next:    e.graph.StartSteps(),
		})
		if err != nil {
			return nil, fmt.Errorf("start %s: %w", threadID, err)
		}
		slog.Info("thread started", "thread_id", threadID)

	case cp.ParkedAt(e.graph.interrupt):
		switch {
		case input != "":
			if cp, err = e.commitFeedback(ctx, threadID, input); err != nil {
				return nil, err
			}
		case e.feedbackStored(cp):
			// The previous call stored its feedback but failed before acting on it.
			slog.Info("thread resuming with stored feedback", "thread_id", threadID, "seq", cp.Seq)
		default:
			return nil, fmt.Errorf("resume %s: %w", threadID, ErrEmptyInput)
		}
		resume = true
		slog.Info("thread resumed", "thread_id", threadID, "pending", e.graph.interrupt)

	default:
		// Interrupted mid-pass: pick up the frontier where it stopped.
		if input != "" {
			if cp, err = e.commitFeedback(ctx, threadID, input); err != nil {
				return nil, err
			}
		}
		slog.Info("thread recovering", "thread_id", threadID, "pending", cp.Pending(), "seq", cp.Seq)
	}

	return e.run(ctx, cp, resume)
}

func (e *Engine) commitFeedback(ctx context.Context, threadID, input string) (*checkpoint.Checkpoint, error) {
	cp, err := e.store.Commit(ctx, threadID, checkpoint.Write{
		Source: sourceInput,
		Update: checkpoint.Update{
			Feedback: checkpoint.Ptr(input),
			Messages: []string{"Human feedback: " + input},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("feedback %s: %w", threadID, err)
	}
	return cp, nil
}

// feedbackStored reports a parked thread whose last commit is human feedback
// that the interrupt node has not consumed yet.
func (e *Engine) feedbackStored(cp *checkpoint.Checkpoint) bool {
	return cp.ParkedAt(e.graph.interrupt) && cp.Step == sourceInput && cp.State.Feedback != ""
}

func (e *Engine) run(ctx context.Context, cp *checkpoint.Checkpoint, resume bool) (*Result, error) {
	threadID := cp.ThreadID

	for superstep := 0; ; superstep++ {
		if len(cp.Next) == 0 {
			e.publish(threadID, events.ThreadCompletedPayload{Seq: cp.Seq, RevisionCount: cp.State.RevisionCount})
			slog.Info("thread completed", "thread_id", threadID, "seq", cp.Seq)
			return e.result(cp), nil
		}

		pending := cp.Pending()
		if !resume && cp.ParkedAt(e.graph.interrupt) {
			e.publish(threadID, events.ThreadParkedPayload{
				Pending:       e.graph.interrupt,
				Seq:           cp.Seq,
				RevisionCount: cp.State.RevisionCount,
				IsValid:       cp.State.IsValid,
			})
			slog.Info("thread parked", "thread_id", threadID, "pending", e.graph.interrupt, "revision", cp.State.RevisionCount)
			return e.result(cp), nil
		}
		resume = false

		if superstep >= e.maxSteps {
			return nil, e.fail(cp, "", fmt.Errorf("thread %s after %d supersteps: %w", threadID, superstep, ErrStepLimit))
		}
		if err := ctx.Err(); err != nil {
			return nil, e.fail(cp, "", fmt.Errorf("thread %s: %w", threadID, err))
		}

		if err := e.superstep(ctx, cp, pending, superstep); err != nil {
			var se *StepError
			step := ""
			if errors.As(err, &se) {
				step = se.Step
			}
			return nil, e.fail(cp, step, err)
		}

		written, err := e.store.Load(ctx, threadID)
		if err != nil {
			return nil, e.fail(cp, "", fmt.Errorf("reload %s: %w", threadID, err))
		}
		next, err := e.graph.Successors(written.Written, written.State)
		if err != nil {
			return nil, e.fail(written, "", fmt.Errorf("thread %s: %w", threadID, err))
		}
		cp, err = e.store.Commit(ctx, threadID, checkpoint.Write{Source: sourceAdvance, Advance: true, Next: next})
		if err != nil {
			return nil, e.fail(written, "", fmt.Errorf("advance %s: %w", threadID, err))
		}
		slog.Debug("frontier advanced", "thread_id", threadID, "next", next, "seq", cp.Seq)
	}
}

// superstep runs every pending step concurrently. Steps are never cancelled
// by a failing sibling; the first error is returned once all have finished.
func (e *Engine) superstep(ctx context.Context, cp *checkpoint.Checkpoint, pending []string, superstep int) error {
	// Cancellation is observed between supersteps only.
	ctx = context.WithoutCancel(ctx)

	var g errgroup.Group
	for _, name := range pending {
		n, ok := e.graph.nodes[name]
		if !ok {
			return &StepError{Step: name, Err: fmt.Errorf("not declared in graph")}
		}
		g.Go(func() error {
			return e.runStep(ctx, cp.ThreadID, n, cp.State, superstep)
		})
	}
	return g.Wait()
}

func (e *Engine) runStep(ctx context.Context, threadID string, n node, state checkpoint.State, superstep int) error {
	e.publish(threadID, events.StepStartedPayload{Step: n.name, Superstep: superstep})
	slog.Debug("step started", "thread_id", threadID, "step", n.name)
	start := time.Now()

	update, err := n.fn(ctx, state)
	if err != nil {
		e.publish(threadID, events.StepCompletedPayload{Step: n.name, Duration: time.Since(start), Error: err.Error()})
		return &StepError{Step: n.name, Err: err}
	}

	cp, err := e.store.Commit(ctx, threadID, checkpoint.Write{Step: n.name, Update: update})
	if err != nil {
		e.publish(threadID, events.StepCompletedPayload{Step: n.name, Duration: time.Since(start), Error: err.Error()})
		return &StepError{Step: n.name, Err: err}
	}

	e.publish(threadID, events.StepCompletedPayload{Step: n.name, Seq: cp.Seq, Duration: time.Since(start)})
	slog.Debug("step completed", "thread_id", threadID, "step", n.name, "seq", cp.Seq, "duration", time.Since(start))
	return nil
}

func (e *Engine) fail(cp *checkpoint.Checkpoint, step string, err error) error {
	e.publish(cp.ThreadID, events.ThreadFailedPayload{Seq: cp.Seq, Step: step, Error: err.Error()})
	slog.Error("thread failed", "thread_id", cp.ThreadID, "step", step, "error", err)
	return err
}

func (e *Engine) publish(threadID string, payload events.EventPayload) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.NewTypedEventWithThread(events.SourceEngine, payload, threadID))
}

func (e *Engine) result(cp *checkpoint.Checkpoint) *Result {
	pending := ""
	if cp.ParkedAt(e.graph.interrupt) {
		pending = e.graph.interrupt
	}
	return &Result{
		ThreadID:   cp.ThreadID,
		Phase:      e.graph.Phase(cp),
		Pending:    pending,
		Checkpoint: cp,
	}
}

// Interrupted reports whether a thread stopped mid-pass and can be resumed
// without human input.
func (e *Engine) Interrupted(cp *checkpoint.Checkpoint) bool {
	return !cp.IsNew() && !cp.Terminated() && !cp.ParkedAt(e.graph.interrupt)
}

// Recoverable lists the threads Interrupted reports true for.
func (e *Engine) Recoverable(ctx context.Context) ([]string, error) {
	summaries, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	var ids []string
	for _, s := range summaries {
		cp := &checkpoint.Checkpoint{ThreadID: s.ThreadID, Seq: s.Seq, Next: s.Next}
		cp.Written = written(s)
		if e.Interrupted(cp) {
			ids = append(ids, s.ThreadID)
		}
	}
	return ids, nil
}

// written reconstructs the written set of a summary from its frontier.
func written(s checkpoint.Summary) []string {
	var out []string
	for _, n := range s.Next {
		if !slices.Contains(s.Pending, n) {
			out = append(out, n)
		}
	}
	return out
}
