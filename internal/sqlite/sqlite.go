// Package sqlite owns the local durable state of the daemon: the offline
// action queue, the append-only action log, learned correction patterns,
// and debrief session state. Remote records live in the record store; this
// database only holds what must survive a restart on this machine.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 2

// DB wraps the sqlite connection used by the local repositories.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the database at path and brings the schema up to
// the current version. Migrations run inside a single transaction.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

// Conn exposes the underlying connection for the repositories.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) migrate() error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return err
	}

	version, err := schemaVersion(tx)
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("db schema version %d is newer than runtime version %d", version, currentSchemaVersion)
	}

	for version < currentSchemaVersion {
		next, err := stepMigration(tx, version)
		if err != nil {
			return err
		}
		if err := setSchemaVersion(tx, next); err != nil {
			return err
		}
		version = next
	}
	return tx.Commit()
}

func schemaVersion(tx *sql.Tx) (int, error) {
	var text string
	err := tx.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&text)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	version, parseErr := strconv.Atoi(text)
	if parseErr != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", text, parseErr)
	}
	if version < 0 {
		return 0, fmt.Errorf("invalid schema version %d", version)
	}
	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(`
INSERT INTO schema_meta (key, value) VALUES ('schema_version', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(version))
	return err
}

func stepMigration(tx *sql.Tx, version int) (int, error) {
	switch version {
	case 0:
		if err := migrateToIntakeCore(tx); err != nil {
			return version, fmt.Errorf("migrate schema 0 -> 1: %w", err)
		}
		return 1, nil
	case 1:
		if err := migrateToDebrief(tx); err != nil {
			return version, fmt.Errorf("migrate schema 1 -> 2: %w", err)
		}
		return 2, nil
	default:
		return version, fmt.Errorf("unsupported schema migration source version %d", version)
	}
}

func migrateToIntakeCore(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS queued_actions (
	id TEXT PRIMARY KEY,
	idempotency_key TEXT NOT NULL,
	collection TEXT NOT NULL,
	title TEXT NOT NULL,
	fields JSON,
	status TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	enqueued_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_queued_actions_key ON queued_actions(idempotency_key)`,
		`CREATE INDEX IF NOT EXISTS idx_queued_actions_status_enqueued ON queued_actions(status, enqueued_at ASC)`,

		`CREATE TABLE IF NOT EXISTS action_log (
	request_id TEXT PRIMARY KEY,
	idempotency_key TEXT NOT NULL,
	ts INTEGER NOT NULL,
	action_type TEXT NOT NULL,
	input_text TEXT NOT NULL,
	interpretation JSON,
	action_taken TEXT NOT NULL,
	confidence INTEGER NOT NULL,
	affected_ids JSON,
	external_api TEXT,
	external_id TEXT,
	error_code TEXT,
	error_message TEXT,
	retry_count INTEGER NOT NULL DEFAULT 0,
	correction_text TEXT,
	corrected_at INTEGER,
	undo_until INTEGER,
	undone INTEGER NOT NULL DEFAULT 0
)`,
		`CREATE INDEX IF NOT EXISTS idx_action_log_key_ts ON action_log(idempotency_key, ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_action_log_type_ts ON action_log(action_type, ts DESC)`,

		`CREATE TABLE IF NOT EXISTS patterns (
	id TEXT PRIMARY KEY,
	phrase TEXT NOT NULL,
	field TEXT NOT NULL,
	value TEXT NOT NULL,
	confidence INTEGER NOT NULL,
	confirmations INTEGER NOT NULL DEFAULT 0,
	contradictions INTEGER NOT NULL DEFAULT 0,
	last_applied_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_patterns_phrase_field ON patterns(phrase, field)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateToDebrief(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS debrief_sessions (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	state TEXT NOT NULL,
	item_index INTEGER NOT NULL DEFAULT 0,
	started_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	ended_at INTEGER
)`,
		`CREATE INDEX IF NOT EXISTS idx_debrief_sessions_channel_state ON debrief_sessions(channel_id, state)`,

		`CREATE TABLE IF NOT EXISTS debrief_items (
	session_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	record_id TEXT NOT NULL,
	title TEXT NOT NULL,
	resolution TEXT NOT NULL,
	response_text TEXT,
	PRIMARY KEY (session_id, position)
)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
