package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dohr-michael/quill/internal/checkpoint"
	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/workflow"
)

func newEngine(t *testing.T, d Deps) (*workflow.Engine, checkpoint.Store) {
	t.Helper()
	g, err := NewGraph(d)
	if err != nil {
		t.Fatal(err)
	}
	store := checkpoint.NewMemoryStore()
	return workflow.NewEngine(g, store), store
}

func TestNewGraphTopologies(t *testing.T) {
	for _, topo := range []string{config.TopologyParallel, config.TopologySequential} {
		d := newFixture().deps()
		d.Topology = topo
		g, err := NewGraph(d)
		if err != nil {
			t.Fatalf("%s: %v", topo, err)
		}
		if g.Interrupt() != HumanReview {
			t.Errorf("%s: interrupt = %q", topo, g.Interrupt())
		}
	}
	d := newFixture().deps()
	d.Topology = "mesh"
	if _, err := NewGraph(d); err == nil {
		t.Error("expected error for unknown topology")
	}
}

// Scenario: first pass validates, thread parks before review at revision 0.
func TestScenarioParkedAfterFirstPass(t *testing.T) {
	f := newFixture()
	e, _ := newEngine(t, f.deps())

	res, err := e.StartOrResume(context.Background(), "s1", "solid-state batteries")
	if err != nil {
		t.Fatal(err)
	}
	st := res.Checkpoint.State
	if res.Pending != HumanReview || res.Phase != workflow.PhaseParked {
		t.Fatalf("result = %+v", res)
	}
	if st.RevisionCount != 0 || !st.IsValid || st.Draft != "# Report v1" {
		t.Errorf("state = %+v", st)
	}
	if !strings.Contains(st.ResearchData, "WEB RESULTS (solid-state batteries)") ||
		!strings.Contains(st.ResearchData, "ACADEMIC RESULTS (solid-state batteries)") {
		t.Errorf("both branches must be present post-join: %q", st.ResearchData)
	}
	if f.writer.calls() != 1 || f.validator.calls() != 1 || f.refiner.calls() != 0 {
		t.Errorf("calls writer=%d validator=%d refiner=%d", f.writer.calls(), f.validator.calls(), f.refiner.calls())
	}
}

// Scenario: approval terminates without touching the draft.
func TestScenarioApprove(t *testing.T) {
	f := newFixture()
	e, _ := newEngine(t, f.deps())
	ctx := context.Background()

	first, err := e.StartOrResume(ctx, "s2", "topic")
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.StartOrResume(ctx, "s2", "Approve")
	if err != nil {
		t.Fatal(err)
	}
	if res.Phase != workflow.PhaseTerminated || res.Pending != "" {
		t.Fatalf("result = %+v", res)
	}
	if res.Checkpoint.State.Draft != first.Checkpoint.State.Draft {
		t.Error("approval must not change the draft")
	}
	if f.writer.calls() != 1 {
		t.Errorf("writer ran %d times", f.writer.calls())
	}
	if _, err := e.StartOrResume(ctx, "s2", "again"); !errors.Is(err, workflow.ErrThreadTerminated) {
		t.Errorf("expected ErrThreadTerminated, got %v", err)
	}
}

// Scenario: validator keeps failing; the bound forces review.
func TestScenarioRevisionBound(t *testing.T) {
	f := newFixture()
	f.validator.responses = []string{"FAIL"}
	d := f.deps()
	d.RevisionBound = 2
	e, _ := newEngine(t, d)

	res, err := e.StartOrResume(context.Background(), "s3", "topic")
	if err != nil {
		t.Fatal(err)
	}
	st := res.Checkpoint.State
	if res.Pending != HumanReview {
		t.Fatalf("result = %+v", res)
	}
	if st.RevisionCount != 2 || st.IsValid {
		t.Errorf("revision = %d, is_valid = %v", st.RevisionCount, st.IsValid)
	}
	if f.validator.calls() != 3 || f.refiner.calls() != 2 {
		t.Errorf("validator=%d refiner=%d", f.validator.calls(), f.refiner.calls())
	}
}

// Scenario: feedback while parked triggers one refinement pass.
func TestScenarioFeedbackRevision(t *testing.T) {
	f := newFixture()
	e, store := newEngine(t, f.deps())
	ctx := context.Background()

	first, err := e.StartOrResume(ctx, "s4", "topic")
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.StartOrResume(ctx, "s4", "cover manufacturing costs")
	if err != nil {
		t.Fatal(err)
	}

	st := res.Checkpoint.State
	if res.Pending != HumanReview {
		t.Fatalf("result = %+v", res)
	}
	if st.RevisionCount != first.Checkpoint.State.RevisionCount+1 {
		t.Errorf("revision = %d", st.RevisionCount)
	}
	if st.RefinedQuery != "solid state electrolytes" {
		t.Errorf("refined_query = %q", st.RefinedQuery)
	}
	if st.Draft != "# Report v2" || st.Feedback != "" {
		t.Errorf("draft = %q feedback = %q", st.Draft, st.Feedback)
	}
	if !strings.Contains(f.refiner.lastPrompt(), "cover manufacturing costs") {
		t.Error("refiner should see the human feedback")
	}
	if q := f.web.seen(); len(q) != 2 || q[1] != "solid state electrolytes" {
		t.Errorf("web queries = %v", q)
	}
	if q := f.academic.seen(); len(q) != 2 || q[1] != "solid state electrolytes" {
		t.Errorf("academic queries = %v", q)
	}
	if len(st.ResearchData) <= len(first.Checkpoint.State.ResearchData) {
		t.Error("research_data must grow")
	}

	hist, err := store.History(ctx, "s4")
	if err != nil {
		t.Fatal(err)
	}
	prevRev, prevLen := 0, 0
	for _, h := range hist {
		if h.State.RevisionCount < prevRev || len(h.State.ResearchData) < prevLen {
			t.Fatalf("history regressed at seq %d", h.Seq)
		}
		prevRev, prevLen = h.State.RevisionCount, len(h.State.ResearchData)
	}
}

// Scenario: a failing web search degrades to a placeholder.
func TestScenarioWebSearchDegraded(t *testing.T) {
	f := newFixture()
	f.web.err = errors.New("connection reset")
	e, _ := newEngine(t, f.deps())

	res, err := e.StartOrResume(context.Background(), "s5", "topic")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Checkpoint.State.ResearchData, "Search failed: connection reset") {
		t.Errorf("research_data = %q", res.Checkpoint.State.ResearchData)
	}
	if f.writer.calls() != 1 {
		t.Error("the pass must still reach the writer")
	}
}

func TestWriterFailureIsResumable(t *testing.T) {
	f := newFixture()
	f.writer.err = errors.New("503")
	e, _ := newEngine(t, f.deps())
	ctx := context.Background()

	_, err := e.StartOrResume(ctx, "s6", "topic")
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Step != Writer {
		t.Fatalf("expected writer GenerationError, got %v", err)
	}

	mid, _ := e.Inspect(ctx, "s6")
	if mid.Phase != workflow.PhaseWriting {
		t.Errorf("phase = %q, want writing", mid.Phase)
	}

	f.writer.err = nil
	res, err := e.StartOrResume(ctx, "s6", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Pending != HumanReview {
		t.Errorf("result = %+v", res)
	}
	if len(f.web.seen()) != 1 {
		t.Error("completed research must not re-run")
	}
}

func TestSequentialTopology(t *testing.T) {
	f := newFixture()
	d := f.deps()
	d.Topology = config.TopologySequential
	e, store := newEngine(t, d)
	ctx := context.Background()

	if _, err := e.StartOrResume(ctx, "seq", "topic"); err != nil {
		t.Fatal(err)
	}
	hist, _ := store.History(ctx, "seq")
	var order []string
	for _, h := range hist {
		if h.Step == WebResearcher || h.Step == AcademicResearcher {
			order = append(order, h.Step)
		}
	}
	if strings.Join(order, ",") != "web_researcher,academic_researcher" {
		t.Errorf("research order = %v", order)
	}

	res, err := e.StartOrResume(ctx, "seq", "needs more data")
	if err != nil {
		t.Fatal(err)
	}
	if res.Checkpoint.State.RevisionCount != 1 || res.Pending != HumanReview {
		t.Errorf("result = %+v", res)
	}
}

func TestRefinerPassesBounded(t *testing.T) {
	f := newFixture()
	f.validator.responses = []string{"FAIL"}
	e, _ := newEngine(t, f.deps())
	ctx := context.Background()

	if _, err := e.StartOrResume(ctx, "loop", "topic"); err != nil {
		t.Fatal(err)
	}
	before := f.refiner.calls()
	if before > config.DefaultRevisionBound+1 {
		t.Fatalf("refiner ran %d times before parking", before)
	}
	for i := 0; i < 3; i++ {
		res, err := e.StartOrResume(ctx, "loop", "not yet")
		if err != nil {
			t.Fatal(err)
		}
		if res.Pending != HumanReview {
			t.Fatalf("expected park after feedback, got %+v", res)
		}
		if got := f.refiner.calls() - before; got != 1 {
			t.Fatalf("feedback past the bound should run exactly one refiner pass, got %d", got)
		}
		before = f.refiner.calls()
	}
}

func TestLargeRevisionBoundStillParks(t *testing.T) {
	for _, topo := range []string{config.TopologyParallel, config.TopologySequential} {
		t.Run(topo, func(t *testing.T) {
			f := newFixture()
			f.validator.responses = []string{"FAIL"}
			d := f.deps()
			d.RevisionBound = 12
			d.Topology = topo
			g, err := NewGraph(d)
			if err != nil {
				t.Fatal(err)
			}
			e := workflow.NewEngine(g, checkpoint.NewMemoryStore(), workflow.WithMaxSteps(config.DefaultMaxSteps))

			res, err := e.StartOrResume(context.Background(), "big", "topic")
			if err != nil {
				t.Fatalf("first pass must park, got %v", err)
			}
			if res.Pending != HumanReview || res.Checkpoint.State.RevisionCount != 12 {
				t.Errorf("pending = %q revision = %d", res.Pending, res.Checkpoint.State.RevisionCount)
			}
			if f.refiner.calls() != 12 {
				t.Errorf("refiner ran %d times", f.refiner.calls())
			}
		})
	}
}
