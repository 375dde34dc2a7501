package checkpoint

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]Checkpoint
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string][]Checkpoint), now: time.Now}
}

func (s *MemoryStore) Load(_ context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.threads[threadID]
	if len(hist) == 0 {
		return empty(threadID), nil
	}
	cp := clone(hist[len(hist)-1])
	return &cp, nil
}

func (s *MemoryStore) Commit(_ context.Context, threadID string, w Write) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := empty(threadID)
	if hist := s.threads[threadID]; len(hist) > 0 {
		last := hist[len(hist)-1]
		prev = &last
	}
	next, err := apply(prev, w, s.now())
	if err != nil {
		return nil, err
	}
	s.threads[threadID] = append(s.threads[threadID], clone(*next))
	return next, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.threads))
	for _, hist := range s.threads {
		last := hist[len(hist)-1]
		out = append(out, summarize(&last))
	}
	sortSummaries(out)
	return out, nil
}

func (s *MemoryStore) History(_ context.Context, threadID string) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.threads[threadID]
	out := make([]Checkpoint, len(hist))
	for i, cp := range hist {
		out[i] = clone(cp)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func clone(c Checkpoint) Checkpoint {
	c.Next = slices.Clone(c.Next)
	c.Written = slices.Clone(c.Written)
	c.State.Messages = slices.Clone(c.State.Messages)
	return c
}

func sortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].ThreadID < s[j].ThreadID
		}
		return s[i].UpdatedAt.After(s[j].UpdatedAt)
	})
}
