// Package dirstore provides the file primitives shared by directory-backed
// stores: one subdirectory per entity, atomic JSON documents and append-only
// JSONL journals.
package dirstore

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DirStore roots a set of entity directories under baseDir.
type DirStore struct {
	mu         sync.RWMutex
	baseDir    string
	entityName string // for error messages: "thread"
}

// NewDirStore creates a DirStore rooted at baseDir.
func NewDirStore(baseDir, entityName string) *DirStore {
	return &DirStore{baseDir: baseDir, entityName: entityName}
}

func (ds *DirStore) Lock()    { ds.mu.Lock() }
func (ds *DirStore) Unlock()  { ds.mu.Unlock() }
func (ds *DirStore) RLock()   { ds.mu.RLock() }
func (ds *DirStore) RUnlock() { ds.mu.RUnlock() }

// BaseDir returns the root directory.
func (ds *DirStore) BaseDir() string { return ds.baseDir }

// SafeName maps an arbitrary entity ID to a single path element. IDs made of
// [A-Za-z0-9_-.] that do not start with a dot are kept as-is; anything else is
// base64url-encoded behind a "b64-" prefix.
func SafeName(id string) string {
	if id != "" && !strings.HasPrefix(id, ".") && !strings.HasPrefix(id, "b64-") && isPlain(id) {
		return id
	}
	return "b64-" + base64.RawURLEncoding.EncodeToString([]byte(id))
}

func isPlain(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// Dir returns the directory path for a given entity ID.
func (ds *DirStore) Dir(id string) string {
	return filepath.Join(ds.baseDir, SafeName(id))
}

// FilePath returns the path to a named file within an entity's directory.
func (ds *DirStore) FilePath(id, name string) string {
	return filepath.Join(ds.Dir(id), name)
}

// EnsureDir creates the entity directory (and parents) if it doesn't exist.
func (ds *DirStore) EnsureDir(id string) error {
	if err := os.MkdirAll(ds.Dir(id), 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", ds.entityName, err)
	}
	return nil
}

// ListDirs returns the names of all entity directories. Names are SafeName
// encodings, not raw IDs.
func (ds *DirStore) ListDirs() ([]string, error) {
	entries, err := os.ReadDir(ds.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %ss dir: %w", ds.entityName, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// WriteJSON atomically replaces a JSON document: the content is written to a
// temp file, synced, then renamed over the target.
func (ds *DirStore) WriteJSON(id, filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filename, err)
	}
	return ds.WriteFileAtomic(id, filename, data)
}

// ReadJSON unmarshals a JSON document into out. It returns os.ErrNotExist
// (wrapped) when the document is absent.
func (ds *DirStore) ReadJSON(id, filename string, out any) error {
	data, err := os.ReadFile(ds.FilePath(id, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s %s: %w", ds.entityName, id, os.ErrNotExist)
		}
		return fmt.Errorf("read %s: %w", filename, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", filename, err)
	}
	return nil
}

// ReadJSONAt is ReadJSON addressed by directory name as returned from ListDirs.
func (ds *DirStore) ReadJSONAt(dirName, filename string, out any) error {
	data, err := os.ReadFile(filepath.Join(ds.baseDir, dirName, filename))
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", dirName, filename, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s/%s: %w", dirName, filename, err)
	}
	return nil
}

// WriteFileAtomic writes content to a named file using tmp + fsync + rename.
func (ds *DirStore) WriteFileAtomic(id, filename string, content []byte) error {
	path := ds.FilePath(id, filename)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s tmp: %w", filename, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s tmp: %w", filename, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s tmp: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s tmp: %w", filename, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filename, err)
	}
	return nil
}

// AppendJSONL appends a JSON-encoded line to the given file within an entity's directory.
func (ds *DirStore) AppendJSONL(id, filename string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filename, err)
	}

	f, err := os.OpenFile(ds.FilePath(id, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", filename, err)
	}
	return nil
}

// LoadJSONL reads all JSON lines from a file, deserializing each into type T.
// A torn trailing line left by a crash is skipped.
func LoadJSONL[T any](ds *DirStore, id, filename string) ([]T, error) {
	f, err := os.Open(ds.FilePath(id, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()

	var items []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(line, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", filename, err)
	}

	return items, nil
}
