package checkpoint

import (
	"fmt"

	"github.com/dohr-michael/quill/internal/config"
)

// Open creates the store selected by storage.driver.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return OpenSQLite(cfg.Path)
	case "file":
		return NewFileStore(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
