package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists checkpoints in a single SQLite table. The latest
// checkpoint of a thread is the row with the highest seq.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ioError("create database dir", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ioError("open sqlite", err)
	}
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, ioError("open sqlite", err)
	}
	return &SQLiteStore{db: db}, nil
}

const selectColumns = `thread_id, seq, step, state, next, written, created_at`

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var (
		cp                       Checkpoint
		state, next, written, at string
	)
	if err := row.Scan(&cp.ThreadID, &cp.Seq, &cp.Step, &state, &next, &written, &at); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(state), &cp.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if err := json.Unmarshal([]byte(next), &cp.Next); err != nil {
		return nil, fmt.Errorf("decode next: %w", err)
	}
	if err := json.Unmarshal([]byte(written), &cp.Written); err != nil {
		return nil, fmt.Errorf("decode written: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	cp.UpdatedAt = t
	return &cp, nil
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadLatest(ctx context.Context, q queryRower, threadID string) (*Checkpoint, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`, threadID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return empty(threadID), nil
	}
	if err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *SQLiteStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	cp, err := loadLatest(ctx, s.db, threadID)
	if err != nil {
		return nil, ioError("load checkpoint", err)
	}
	return cp, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, threadID string, w Write) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ioError("commit: begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	prev, err := loadLatest(ctx, tx, threadID)
	if err != nil {
		return nil, ioError("commit: load", err)
	}
	next, err := apply(prev, w, time.Now())
	if err != nil {
		return nil, err
	}

	state, err := json.Marshal(next.State)
	if err != nil {
		return nil, fmt.Errorf("commit: encode state: %w", err)
	}
	nextSteps, _ := json.Marshal(next.Next)
	written, _ := json.Marshal(next.Written)
	if next.Written == nil {
		written = []byte("[]")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, seq, step, state, next, written, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		next.ThreadID, next.Seq, next.Step, string(state), string(nextSteps), string(written),
		next.UpdatedAt.Format(timeLayout))
	if err != nil {
		return nil, ioError("commit: insert", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, ioError("commit", err)
	}
	return next, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM checkpoints c
		WHERE seq = (SELECT MAX(seq) FROM checkpoints WHERE thread_id = c.thread_id)
		ORDER BY created_at DESC, thread_id`)
	if err != nil {
		return nil, ioError("list threads", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, ioError("list threads: scan", err)
		}
		out = append(out, summarize(cp))
	}
	if err := rows.Err(); err != nil {
		return nil, ioError("list threads", err)
	}
	return out, nil
}

func (s *SQLiteStore) History(ctx context.Context, threadID string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM checkpoints WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		return nil, ioError("history", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, ioError("history: scan", err)
		}
		out = append(out, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, ioError("history", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
