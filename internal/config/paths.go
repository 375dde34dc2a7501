package config

import (
	"os"
	"path/filepath"
)

// Data directory layout under QuillPath.
const (
	configFile    = "config.jsonc"
	dotenvFile    = ".env"
	ageKeyFile    = ".age-key"
	sqliteFile    = "checkpoints.sqlite"
	threadsDir    = "threads"
	eventLogDir   = "logs"
	heartbeatFile = "gateway.heartbeat"
)

// QuillPath is the data root: $QUILL_PATH, else ~/.quill, else ./.quill.
func QuillPath() string {
	if v := os.Getenv("QUILL_PATH"); v != "" {
		return v
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".quill")
	}
	return filepath.Join(".", ".quill")
}

func ConfigPath() string    { return filepath.Join(QuillPath(), configFile) }
func DotenvPath() string    { return filepath.Join(QuillPath(), dotenvFile) }
func AgeKeyPath() string    { return filepath.Join(QuillPath(), ageKeyFile) }
func EventLogDir() string   { return filepath.Join(QuillPath(), eventLogDir) }
func HeartbeatPath() string { return filepath.Join(QuillPath(), heartbeatFile) }

// StoragePath is the default location of the checkpoint store for driver.
// The file driver keeps one directory per thread; sqlite uses a single database.
func StoragePath(driver string) string {
	if driver == "file" {
		return filepath.Join(QuillPath(), threadsDir)
	}
	return filepath.Join(QuillPath(), sqliteFile)
}
