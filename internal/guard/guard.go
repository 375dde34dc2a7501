// Package guard serializes workflow runs per thread.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dohr-michael/quill/internal/workflow"
)

// ErrThreadBusy is returned when a thread already has a run in progress.
var ErrThreadBusy = errors.New("thread busy")

// Locks is a set of per-thread try-locks.
type Locks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocks creates an empty lock set.
func NewLocks() *Locks {
	return &Locks{held: make(map[string]struct{})}
}

// TryLock acquires the lock for id without blocking.
func (l *Locks) TryLock(id string) (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[id]; ok {
		return nil, fmt.Errorf("%s: %w", id, ErrThreadBusy)
	}
	l.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether id is currently locked.
func (l *Locks) Held(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[id]
	return ok
}

// Runner wraps an engine so at most one run per thread is active in this process.
type Runner struct {
	engine *workflow.Engine
	locks  *Locks
}

// NewRunner creates a Runner over engine.
func NewRunner(engine *workflow.Engine) *Runner {
	return &Runner{engine: engine, locks: NewLocks()}
}

// Engine returns the wrapped engine.
func (r *Runner) Engine() *workflow.Engine { return r.engine }

// StartOrResume runs the thread unless another run holds it.
func (r *Runner) StartOrResume(ctx context.Context, threadID, input string) (*workflow.Result, error) {
	release, err := r.locks.TryLock(threadID)
	if err != nil {
		return nil, err
	}
	defer release()
	return r.engine.StartOrResume(ctx, threadID, input)
}

// Inspect is a read-only passthrough; it never takes the lock.
func (r *Runner) Inspect(ctx context.Context, threadID string) (*workflow.Result, error) {
	return r.engine.Inspect(ctx, threadID)
}

// Busy reports whether threadID has a run in progress.
func (r *Runner) Busy(threadID string) bool {
	return r.locks.Held(threadID)
}
