package recovery

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dohr-michael/quill/internal/checkpoint"
	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/guard"
	"github.com/dohr-michael/quill/internal/workflow"
)

// flakyRunner: start -> draft -> review (interrupt) -> terminate.
// draft fails while failures > 0.
func flakyRunner(t *testing.T, failures *atomic.Int32, bus *events.Bus) *guard.Runner {
	t.Helper()
	draft := func(_ context.Context, s checkpoint.State) (checkpoint.Update, error) {
		if failures.Load() > 0 {
			failures.Add(-1)
			return checkpoint.Update{}, errors.New("provider down")
		}
		return checkpoint.Update{Draft: checkpoint.Ptr("draft for " + s.Task)}, nil
	}
	review := func(context.Context, checkpoint.State) (checkpoint.Update, error) {
		return checkpoint.Update{}, nil
	}
	g, err := workflow.NewBuilder().
		AddNode("draft", workflow.PhaseWriting, draft).
		AddNode("review", workflow.PhaseParked, review).
		AddEdge(workflow.Start, "draft").
		AddEdge("draft", "review").
		AddConditional("review", func(checkpoint.State) string { return workflow.Terminate }, workflow.Terminate).
		InterruptBefore("review").
		Compile()
	if err != nil {
		t.Fatal(err)
	}
	return guard.NewRunner(workflow.NewEngine(g, checkpoint.NewMemoryStore(), workflow.WithEventBus(bus)))
}

func TestRecoverAll_ResumesOnlyInterrupted(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus(64)
	defer bus.Close()
	recoveredCh, unsub := bus.SubscribeChan(8, events.EventThreadRecovered)
	defer unsub()

	var failures atomic.Int32
	runner := flakyRunner(t, &failures, bus)

	failures.Store(1)
	if _, err := runner.StartOrResume(ctx, "crashed", "topic a"); err == nil {
		t.Fatal("expected first run to fail")
	}
	if _, err := runner.StartOrResume(ctx, "parked", "topic b"); err != nil {
		t.Fatalf("parked run: %v", err)
	}

	ids, err := runner.Engine().Recoverable(ctx)
	if err != nil {
		t.Fatalf("Recoverable: %v", err)
	}
	if len(ids) != 1 || ids[0] != "crashed" {
		t.Fatalf("Recoverable = %v, want [crashed]", ids)
	}

	r, err := New(runner, config.RecoveryConfig{}, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := r.RecoverAll(ctx)
	if err != nil {
		t.Fatalf("RecoverAll: %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered %d, want 1", n)
	}

	res, err := runner.Inspect(ctx, "crashed")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if res.Phase != workflow.PhaseParked || res.Checkpoint.State.Draft != "draft for topic a" {
		t.Fatalf("after recovery: phase=%s draft=%q", res.Phase, res.Checkpoint.State.Draft)
	}

	select {
	case e := <-recoveredCh:
		if e.ThreadID != "crashed" {
			t.Fatalf("recovered event for %q", e.ThreadID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no recovered event")
	}

	ids, _ = runner.Engine().Recoverable(ctx)
	if len(ids) != 0 {
		t.Fatalf("nothing should remain recoverable, got %v", ids)
	}
}

func TestRecoverAll_StillFailing(t *testing.T) {
	ctx := context.Background()
	var failures atomic.Int32
	runner := flakyRunner(t, &failures, nil)

	failures.Store(5)
	runner.StartOrResume(ctx, "t1", "topic")

	r, _ := New(runner, config.RecoveryConfig{}, nil)
	n, err := r.RecoverAll(ctx)
	if err != nil {
		t.Fatalf("RecoverAll: %v", err)
	}
	if n != 0 {
		t.Fatalf("recovered %d, want 0", n)
	}
}

func TestStart_OnStartupSweep(t *testing.T) {
	ctx := context.Background()
	var failures atomic.Int32
	runner := flakyRunner(t, &failures, nil)

	failures.Store(1)
	runner.StartOrResume(ctx, "t1", "topic")

	r, err := New(runner, config.RecoveryConfig{Schedule: "@every 1h"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		res, err := runner.Inspect(ctx, "t1")
		if err == nil && res.Phase == workflow.PhaseParked {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("startup sweep did not resume t1")
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.Stop()
	r.Stop()
}

func TestStart_OnStartupDisabled(t *testing.T) {
	ctx := context.Background()
	var failures atomic.Int32
	runner := flakyRunner(t, &failures, nil)

	failures.Store(1)
	runner.StartOrResume(ctx, "t1", "topic")

	off := false
	r, _ := New(runner, config.RecoveryConfig{OnStartup: &off}, nil)
	r.Start(ctx)
	r.Stop()

	ids, _ := runner.Engine().Recoverable(ctx)
	if len(ids) != 1 {
		t.Fatalf("t1 should still be recoverable, got %v", ids)
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(nil, config.RecoveryConfig{Schedule: "not a cron"}, nil)
	if err == nil || !strings.Contains(err.Error(), "recovery schedule") {
		t.Fatalf("expected schedule error, got %v", err)
	}
}
