package checkpoint

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest checkpoint schema version.
const SchemaVersion = 1

// Migrate ensures the checkpoint schema exists and is at SchemaVersion.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current); err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("migrate: database schema v%d is newer than supported v%d", current, SchemaVersion)
	}
	if current == SchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			step TEXT NOT NULL,
			state TEXT NOT NULL,
			next TEXT NOT NULL,
			written TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (thread_id, seq)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create checkpoints table: %w", err)
	}

	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_checkpoints_created_at ON checkpoints(created_at);`); err != nil {
		return fmt.Errorf("migrate: create idx_checkpoints_created_at: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?);`, SchemaVersion); err != nil {
		return fmt.Errorf("migrate: record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit transaction: %w", err)
	}
	return nil
}
