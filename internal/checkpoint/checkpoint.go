package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrStoreIO wraps every persistence failure. The previous checkpoint stays intact.
	ErrStoreIO = errors.New("checkpoint store I/O failure")
	// ErrStepNotPending is returned when a step writes outside the current frontier.
	ErrStepNotPending = errors.New("step is not pending")
)

// Checkpoint is one committed version of a thread.
type Checkpoint struct {
	ThreadID  string    `json:"thread_id"`
	Seq       int64     `json:"seq"`
	State     State     `json:"state"`
	Next      []string  `json:"next"`
	Written   []string  `json:"written,omitempty"`
	Step      string    `json:"step,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsNew reports whether nothing was ever committed for the thread.
func (c *Checkpoint) IsNew() bool { return c.Seq == 0 }

// Terminated reports whether the thread ran to completion.
func (c *Checkpoint) Terminated() bool { return c.Seq > 0 && len(c.Next) == 0 }

// Pending returns the frontier steps that have not committed their write yet.
func (c *Checkpoint) Pending() []string {
	var out []string
	for _, s := range c.Next {
		if !slices.Contains(c.Written, s) {
			out = append(out, s)
		}
	}
	return out
}

// ParkedAt reports whether the thread is suspended right before step: the
// step is scheduled and nothing of the current superstep is written yet.
func (c *Checkpoint) ParkedAt(step string) bool {
	return step != "" && len(c.Written) == 0 && slices.Contains(c.Next, step)
}

// Write is the unit of Commit.
type Write struct {
	// Step is the node that produced the update. It is marked written.
	Step string
	// Source labels commits that are not step outputs ("input", "advance").
	Source string
	Update Update
	// Advance replaces the frontier with Next and clears the written set.
	Advance bool
	Next    []string
}

// Summary describes a thread for listings.
type Summary struct {
	ThreadID      string    `json:"thread_id"`
	Seq           int64     `json:"seq"`
	Next          []string  `json:"next"`
	Pending       []string  `json:"pending"`
	Task          string    `json:"task"`
	RevisionCount int       `json:"revision_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store persists checkpoints.
type Store interface {
	// Load returns the latest checkpoint, or an empty one (Seq 0) for an unseen thread.
	Load(ctx context.Context, threadID string) (*Checkpoint, error)
	// Commit atomically applies w on top of the latest checkpoint.
	Commit(ctx context.Context, threadID string, w Write) (*Checkpoint, error)
	// List returns a summary of every known thread, most recently updated first.
	List(ctx context.Context) ([]Summary, error)
	// History returns every committed checkpoint of the thread, oldest first.
	History(ctx context.Context, threadID string) ([]Checkpoint, error)
	Close() error
}

// PendingStep returns interrupt when threadID is parked before it, else "".
func PendingStep(ctx context.Context, store Store, threadID, interrupt string) (string, error) {
	cp, err := store.Load(ctx, threadID)
	if err != nil {
		return "", err
	}
	if cp.ParkedAt(interrupt) {
		return interrupt, nil
	}
	return "", nil
}

func empty(threadID string) *Checkpoint {
	return &Checkpoint{ThreadID: threadID}
}

// apply computes the checkpoint that results from committing w on prev.
func apply(prev *Checkpoint, w Write, now time.Time) (*Checkpoint, error) {
	if w.Step != "" && !slices.Contains(prev.Pending(), w.Step) {
		return nil, fmt.Errorf("commit %s: %w", w.Step, ErrStepNotPending)
	}

	state, err := Merge(prev.State, w.Update)
	if err != nil {
		return nil, err
	}

	next := slices.Clone(prev.Next)
	written := slices.Clone(prev.Written)
	if w.Step != "" {
		written = append(written, w.Step)
	}
	if w.Advance {
		next = slices.Clone(w.Next)
		written = nil
	}
	if next == nil {
		next = []string{}
	}

	label := w.Step
	if label == "" {
		label = w.Source
	}

	return &Checkpoint{
		ThreadID:  prev.ThreadID,
		Seq:       prev.Seq + 1,
		State:     state,
		Next:      next,
		Written:   written,
		Step:      label,
		UpdatedAt: now.UTC(),
	}, nil
}

func summarize(c *Checkpoint) Summary {
	return Summary{
		ThreadID:      c.ThreadID,
		Seq:           c.Seq,
		Next:          c.Next,
		Pending:       c.Pending(),
		Task:          c.State.Task,
		RevisionCount: c.State.RevisionCount,
		UpdatedAt:     c.UpdatedAt,
	}
}

func ioError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreIO, err)
}
