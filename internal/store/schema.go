package store

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       id          INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp   INTEGER NOT NULL,
	       identifier  TEXT NOT NULL,
	       name        TEXT NOT NULL,
	       kind        TEXT NOT NULL,
	       value       REAL NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS samples_identifier_timestamp
	       ON samples (identifier, timestamp);`

	insertSampleSQL = `
    INSERT INTO samples (timestamp, identifier, name, kind, value)
    VALUES (?, ?, ?, ?, ?)`

	selectSamplesSQL = `
    SELECT timestamp, identifier, name, kind, value
    FROM samples
    WHERE identifier = ? AND timestamp >= ?
    ORDER BY timestamp, id`
)

// ensureSchema creates the schema on an empty database and rejects a
// database written by a different schema version.
func ensureSchema(db *sql.DB, log *zap.Logger) error {
	var version int
	err := db.QueryRow(`SELECT version FROM schema_versions ORDER BY version DESC LIMIT 1`).Scan(&version)
	switch {
	case err == nil:
		if version != SchemaVersion {
			return fmt.Errorf("%w: database has version %d, want %d", ErrSchemaMismatch, version, SchemaVersion)
		}
		return nil
	case errors.Is(err, sql.ErrNoRows):
		// Table exists but is empty
	default:
		// Table missing on a fresh database
		log.Debug("Creating sample database schema")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning schema transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug("Failed to roll back schema transaction", zap.Error(err))
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))`, SchemaVersion); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema: %w", err)
	}
	committed = true
	return nil
}
