package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dohr-michael/quill/internal/storage/dirstore"
)

const (
	latestFile  = "checkpoint.json"
	historyFile = "history.jsonl"
)

// FileStore persists checkpoints as files:
//
//	<dir>/<thread>/checkpoint.json   latest checkpoint (tmp + fsync + rename)
//	<dir>/<thread>/history.jsonl     every committed checkpoint
type FileStore struct {
	ds *dirstore.DirStore
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ioError("create threads dir", err)
	}
	return &FileStore{ds: dirstore.NewDirStore(dir, "thread")}, nil
}

func (s *FileStore) Load(_ context.Context, threadID string) (*Checkpoint, error) {
	s.ds.RLock()
	defer s.ds.RUnlock()
	return s.load(threadID)
}

func (s *FileStore) load(threadID string) (*Checkpoint, error) {
	var cp Checkpoint
	if err := s.ds.ReadJSON(threadID, latestFile, &cp); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return empty(threadID), nil
		}
		return nil, ioError("load checkpoint", err)
	}
	return &cp, nil
}

// Commit appends to the history first, then replaces checkpoint.json. A crash
// in between leaves a history row ahead of the latest file; the latest file
// stays the source of truth.
func (s *FileStore) Commit(_ context.Context, threadID string, w Write) (*Checkpoint, error) {
	s.ds.Lock()
	defer s.ds.Unlock()

	prev, err := s.load(threadID)
	if err != nil {
		return nil, err
	}
	next, err := apply(prev, w, time.Now())
	if err != nil {
		return nil, err
	}

	if err := s.ds.EnsureDir(threadID); err != nil {
		return nil, ioError("commit", err)
	}
	if err := s.ds.AppendJSONL(threadID, historyFile, next); err != nil {
		return nil, ioError("commit history", err)
	}
	if err := s.ds.WriteJSON(threadID, latestFile, next); err != nil {
		return nil, ioError("commit checkpoint", err)
	}
	return next, nil
}

func (s *FileStore) List(_ context.Context) ([]Summary, error) {
	s.ds.RLock()
	defer s.ds.RUnlock()

	dirs, err := s.ds.ListDirs()
	if err != nil {
		return nil, ioError("list threads", err)
	}
	out := make([]Summary, 0, len(dirs))
	for _, dir := range dirs {
		var cp Checkpoint
		if err := s.ds.ReadJSONAt(dir, latestFile, &cp); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, ioError(fmt.Sprintf("list thread %s", dir), err)
		}
		out = append(out, summarize(&cp))
	}
	sortSummaries(out)
	return out, nil
}

// History returns the journal rows up to the latest committed sequence.
func (s *FileStore) History(_ context.Context, threadID string) ([]Checkpoint, error) {
	s.ds.RLock()
	defer s.ds.RUnlock()

	latest, err := s.load(threadID)
	if err != nil {
		return nil, err
	}
	rows, err := dirstore.LoadJSONL[Checkpoint](s.ds, threadID, historyFile)
	if err != nil {
		return nil, ioError("load history", err)
	}

	// A row may exist for a commit whose checkpoint.json rename never happened,
	// and a retried commit then reuses that seq. Keep the last row per seq.
	bySeq := make(map[int64]int, len(rows))
	out := make([]Checkpoint, 0, len(rows))
	for _, row := range rows {
		if row.Seq > latest.Seq {
			continue
		}
		if i, ok := bySeq[row.Seq]; ok {
			out[i] = row
			continue
		}
		bySeq[row.Seq] = len(out)
		out = append(out, row)
	}
	return out, nil
}

func (s *FileStore) Close() error { return nil }
