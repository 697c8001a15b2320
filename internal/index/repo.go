package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/influx/internal/apperr"
	"github.com/starford/influx/internal/models"
	"github.com/starford/influx/internal/parser"
)

// NoteRow represents a row in the notes table. A zero CreatedAt on upsert
// keeps the stored creation time (or UpdatedAt for a new row).
type NoteRow struct {
	Path      string
	Title     string
	Checksum  string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LinkRow is one outgoing link occurrence of a note.
type LinkRow struct {
	Target string
	Line   int
	Col    int
	Raw    string
}

var sortColumns = map[string]string{
	"":           "updated_at DESC",
	"updated_at": "updated_at DESC",
	"created_at": "created_at DESC",
	"title":      "title ASC",
	"path":       "path ASC",
}

// UpsertNote inserts or replaces a note and its outgoing links within a transaction.
func (db *DB) UpsertNote(n NoteRow, body string, links []LinkRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)

	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now()
	}
	explicitCreated := !n.CreatedAt.IsZero()
	created := n.CreatedAt
	if !explicitCreated {
		created = n.UpdatedAt
	}

	_, err = tx.Exec(`
		INSERT INTO notes (path, name, title, checksum, tags, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			body       = excluded.body,
			created_at = CASE WHEN ? THEN excluded.created_at ELSE notes.created_at END,
			updated_at = excluded.updated_at
	`, n.Path, parser.NameKey(n.Path), n.Title, n.Checksum, string(tagsJSON), body, created, n.UpdatedAt, explicitCreated)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// Replace links: delete old then bulk insert.
	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, n.Path); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target, name, line, col, raw) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.Exec(n.Path, l.Target, parser.NameKey(l.Target), l.Line, l.Col, l.Raw); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteNote removes a note and its outgoing links.
func (db *DB) DeleteNote(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, path); err != nil {
		return fmt.Errorf("index: delete links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a note, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// GetNote returns the indexed row for path, or apperr.ErrNotFound.
func (db *DB) GetNote(path string) (*NoteRow, error) {
	var (
		r    NoteRow
		tags string
	)
	err := db.conn.QueryRow(`
		SELECT path, title, checksum, tags, created_at, updated_at
		FROM notes WHERE path = ?
	`, path).Scan(&r.Path, &r.Title, &r.Checksum, &tags, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	_ = json.Unmarshal([]byte(tags), &r.Tags)
	return &r, nil
}

// ListNotes returns one page of notes, optionally filtered by tag, plus the
// total number of matching notes.
func (db *DB) ListNotes(limit, offset int, tag, sort string) ([]NoteRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	order, ok := sortColumns[sort]
	if !ok {
		return nil, 0, fmt.Errorf("index: list notes: unknown sort %q", sort)
	}

	where := ""
	var args []any
	if tag != "" {
		where = `WHERE tags LIKE ?`
		quoted, _ := json.Marshal(tag)
		args = append(args, "%"+string(quoted)+"%")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	query := strings.Join([]string{
		`SELECT path, title, checksum, tags, created_at, updated_at FROM notes`,
		where,
		`ORDER BY ` + order + `, path ASC LIMIT ? OFFSET ?`,
	}, " ")
	rows, err := db.conn.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		var (
			r    NoteRow
			tags string
		)
		if err := rows.Scan(&r.Path, &r.Title, &r.Checksum, &tags, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, 0, err
		}
		_ = json.Unmarshal([]byte(tags), &r.Tags)
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// AllPaths returns every indexed note path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// AllChecksums returns path -> checksum for every indexed note.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns every note linking to target together with the link
// locations, ordered by source path then position. A link counts when it
// resolves to target among the indexed notes (see resolveLink); paths are
// compared case-insensitively. It always reads the live tables.
func (db *DB) Backlinks(target string) (models.BacklinkSet, error) {
	set := models.NewBacklinkSet()
	key := parser.NameKey(target)

	peers, err := db.pathsNamed(key)
	if err != nil {
		return set, err
	}

	rows, err := db.conn.Query(`
		SELECT source, target, line, col, raw
		FROM links
		WHERE name = ?
		ORDER BY source, line, col
	`, key)
	if err != nil {
		return set, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			source, linked string
			ref            models.LinkRef
		)
		if err := rows.Scan(&source, &linked, &ref.Line, &ref.Col, &ref.Raw); err != nil {
			return set, err
		}
		if strings.EqualFold(resolveLink(linked, source, peers), target) {
			set.Add(source, ref)
		}
	}
	return set, rows.Err()
}

// ResolveLink returns the note path a raw wikilink target written in source
// names, or the normalised target when no indexed note matches. It returns
// "" for links that only address a heading of source.
func (db *DB) ResolveLink(target, source string) (string, error) {
	t := parser.ResolveTarget(target)
	if t == "" {
		return "", nil
	}
	peers, err := db.pathsNamed(parser.NameKey(t))
	if err != nil {
		return "", err
	}
	return resolveLink(t, source, peers), nil
}

// pathsNamed returns the indexed note paths whose name key is key.
func (db *DB) pathsNamed(key string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT path FROM notes WHERE name = ? ORDER BY path`, key)
	if err != nil {
		return nil, fmt.Errorf("index: notes named %q: %w", key, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
