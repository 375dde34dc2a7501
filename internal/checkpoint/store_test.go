package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/dohr-michael/quill/internal/config"
)

type storeFactory struct {
	name string
	open func(t *testing.T, dir string) Store
}

var factories = []storeFactory{
	{"memory", func(t *testing.T, _ string) Store { return NewMemoryStore() }},
	{"file", func(t *testing.T, dir string) Store {
		s, err := NewFileStore(filepath.Join(dir, "threads"))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}},
	{"sqlite", func(t *testing.T, dir string) Store {
		s, err := OpenSQLite(filepath.Join(dir, "checkpoints.sqlite"))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}},
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for _, f := range factories {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t, t.TempDir())
			defer s.Close()
			fn(t, s)
		})
	}
}

func TestStoreLoadUnseen(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		cp, err := s.Load(context.Background(), "nobody")
		if err != nil {
			t.Fatal(err)
		}
		if !cp.IsNew() || cp.ThreadID != "nobody" || len(cp.Pending()) != 0 {
			t.Errorf("unexpected empty checkpoint: %+v", cp)
		}
		if cp.Terminated() {
			t.Error("unseen thread is not terminated")
		}
	})
}

func TestStoreCommitLifecycle(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		cp, err := s.Commit(ctx, "t1", Write{
			Source:  "input",
			Update:  Update{Task: Ptr("task"), RevisionCount: Ptr(0)},
			Advance: true,
			Next:    []string{"web", "academic"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if cp.Seq != 1 || cp.Step != "input" {
			t.Fatalf("first commit = %+v", cp)
		}

		cp, err = s.Commit(ctx, "t1", Write{Step: "web", Update: Update{ResearchData: "W", Messages: []string{"web done"}}})
		if err != nil {
			t.Fatal(err)
		}
		if got := cp.Pending(); !slices.Equal(got, []string{"academic"}) {
			t.Fatalf("pending after web = %v", got)
		}

		if _, err := s.Commit(ctx, "t1", Write{Step: "web"}); !errors.Is(err, ErrStepNotPending) {
			t.Fatalf("double write should be rejected, got %v", err)
		}

		if _, err := s.Commit(ctx, "t1", Write{Step: "academic", Update: Update{ResearchData: "A"}}); err != nil {
			t.Fatal(err)
		}
		cp, err = s.Commit(ctx, "t1", Write{Source: "advance", Advance: true, Next: []string{"writer"}})
		if err != nil {
			t.Fatal(err)
		}
		if cp.Seq != 4 || !slices.Equal(cp.Next, []string{"writer"}) || len(cp.Written) != 0 {
			t.Fatalf("advanced checkpoint = %+v", cp)
		}

		loaded, err := s.Load(ctx, "t1")
		if err != nil {
			t.Fatal(err)
		}
		if loaded.Seq != 4 || loaded.State.ResearchData != "WA" || loaded.State.Task != "task" {
			t.Errorf("loaded = %+v", loaded)
		}

		hist, err := s.History(ctx, "t1")
		if err != nil {
			t.Fatal(err)
		}
		if len(hist) != 4 {
			t.Fatalf("history length = %d, want 4", len(hist))
		}
		for i, h := range hist {
			if h.Seq != int64(i+1) {
				t.Errorf("history[%d].Seq = %d", i, h.Seq)
			}
		}
		if hist[1].Step != "web" || hist[1].State.ResearchData != "W" {
			t.Errorf("history rows must be immutable snapshots: %+v", hist[1])
		}

		cp, err = s.Commit(ctx, "t1", Write{Source: "advance", Advance: true})
		if err != nil {
			t.Fatal(err)
		}
		if !cp.Terminated() {
			t.Errorf("empty frontier should terminate: %+v", cp)
		}
	})
}

func TestStoreMergeViolationPersistsNothing(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		if _, err := s.Commit(ctx, "t1", Write{Source: "input", Update: Update{Task: Ptr("a"), RevisionCount: Ptr(1)}, Advance: true, Next: []string{"x"}}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Commit(ctx, "t1", Write{Step: "x", Update: Update{Task: Ptr("b")}}); !errors.Is(err, ErrTaskImmutable) {
			t.Fatalf("expected ErrTaskImmutable, got %v", err)
		}
		if _, err := s.Commit(ctx, "t1", Write{Step: "x", Update: Update{RevisionCount: Ptr(0)}}); !errors.Is(err, ErrRevisionRegressed) {
			t.Fatalf("expected ErrRevisionRegressed, got %v", err)
		}
		cp, err := s.Load(ctx, "t1")
		if err != nil {
			t.Fatal(err)
		}
		if cp.Seq != 1 || !slices.Equal(cp.Pending(), []string{"x"}) {
			t.Errorf("rejected writes must not persist: %+v", cp)
		}
	})
}

func TestStoreConcurrentStepCommits(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		steps := []string{"a", "b", "c", "d"}
		if _, err := s.Commit(ctx, "t1", Write{Source: "input", Update: Update{Task: Ptr("t")}, Advance: true, Next: steps}); err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, len(steps))
		for _, step := range steps {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Commit(ctx, "t1", Write{Step: step, Update: Update{ResearchData: step}})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatal(err)
			}
		}

		cp, err := s.Load(ctx, "t1")
		if err != nil {
			t.Fatal(err)
		}
		if len(cp.Pending()) != 0 || len(cp.State.ResearchData) != 4 {
			t.Errorf("all branch writes must be present: %+v", cp)
		}
		for _, step := range steps {
			if !slices.Contains(cp.Written, step) {
				t.Errorf("step %s not marked written", step)
			}
		}
	})
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, s Store) {
		for _, id := range []string{"alpha", "beta/with-slash"} {
			if _, err := s.Commit(ctx, id, Write{Source: "input", Update: Update{Task: Ptr("task " + id)}, Advance: true, Next: []string{"human_review"}}); err != nil {
				t.Fatal(err)
			}
		}
		list, err := s.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 2 {
			t.Fatalf("List = %+v", list)
		}
		ids := []string{list[0].ThreadID, list[1].ThreadID}
		slices.Sort(ids)
		if !slices.Equal(ids, []string{"alpha", "beta/with-slash"}) {
			t.Errorf("ids = %v", ids)
		}
		for _, sum := range list {
			if sum.Task != "task "+sum.ThreadID || !slices.Equal(sum.Pending, []string{"human_review"}) {
				t.Errorf("summary = %+v", sum)
			}
		}
	})
}

func TestPendingStep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	got, err := PendingStep(ctx, s, "t1", "human_review")
	if err != nil || got != "" {
		t.Fatalf("unseen: %q, %v", got, err)
	}

	s.Commit(ctx, "t1", Write{Source: "input", Update: Update{Task: Ptr("t")}, Advance: true, Next: []string{"validator"}})
	if got, _ := PendingStep(ctx, s, "t1", "human_review"); got != "" {
		t.Errorf("mid-pass: %q", got)
	}

	s.Commit(ctx, "t1", Write{Source: "advance", Advance: true, Next: []string{"human_review"}})
	if got, _ := PendingStep(ctx, s, "t1", "human_review"); got != "human_review" {
		t.Errorf("parked: %q", got)
	}
}

func TestStoresSurviveReopen(t *testing.T) {
	ctx := context.Background()
	for _, f := range factories {
		if f.name == "memory" {
			continue
		}
		t.Run(f.name, func(t *testing.T) {
			dir := t.TempDir()
			s := f.open(t, dir)
			s.Commit(ctx, "t1", Write{Source: "input", Update: Update{Task: Ptr("durable")}, Advance: true, Next: []string{"a", "b"}})
			s.Commit(ctx, "t1", Write{Step: "a", Update: Update{ResearchData: "A"}})
			if err := s.Close(); err != nil {
				t.Fatal(err)
			}

			reopened := f.open(t, dir)
			defer reopened.Close()

			cp, err := reopened.Load(ctx, "t1")
			if err != nil {
				t.Fatal(err)
			}
			if cp.Seq != 2 || cp.State.Task != "durable" || !slices.Equal(cp.Pending(), []string{"b"}) {
				t.Errorf("reopened checkpoint = %+v", cp)
			}
			hist, err := reopened.History(ctx, "t1")
			if err != nil || len(hist) != 2 {
				t.Errorf("reopened history = %d rows, %v", len(hist), err)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(config.StorageConfig{Driver: "file", Path: filepath.Join(dir, "threads")})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("Open(file) = %T", s)
	}
	if _, err := Open(config.StorageConfig{Driver: "etcd"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
