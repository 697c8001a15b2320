// Package index provides the SQLite-backed note and backlink index.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is stored in PRAGMA user_version. An index written under an
// older version is dropped and rebuilt by the next Sync.
const schemaVersion = 3

const dropSchemaSQL = `
DROP TABLE IF EXISTS links;
DROP TABLE IF EXISTS notes;
DROP TABLE IF EXISTS notes_fts;
`

// One row per wikilink occurrence; line and col are 1-based in the source.
// name is parser.NameKey of the note path (notes) or link target (links).
const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	path       TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	body       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS links (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	name   TEXT NOT NULL DEFAULT '',
	line   INTEGER NOT NULL DEFAULT 0,
	col    INTEGER NOT NULL DEFAULT 0,
	raw    TEXT NOT NULL DEFAULT '',
	UNIQUE(source, target, line, col)
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source);
CREATE INDEX IF NOT EXISTS idx_links_name ON links(name, source);
CREATE INDEX IF NOT EXISTS idx_notes_name ON notes(name);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and migrates it to the
// current schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn}, nil
}

func migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("index: read schema version: %w", err)
	}
	if version == schemaVersion {
		_, err := conn.Exec(schemaSQL)
		if err != nil {
			return fmt.Errorf("index: apply schema: %w", err)
		}
		return nil
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("index: migrate: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(dropSchemaSQL); err != nil {
		return fmt.Errorf("index: drop schema v%d: %w", version, err)
	}
	if _, err := tx.Exec(schemaSQL); err != nil {
		return fmt.Errorf("index: apply schema: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("index: write schema version: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
