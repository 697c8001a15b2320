package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/influx/internal/parser"
	"github.com/starford/influx/internal/storage"
)

// SyncStats counts what a Sync changed.
type SyncStats struct {
	Indexed   int
	Removed   int
	Unchanged int
	Failed    int
}

// Sync walks the vault and brings the index up to date: new or changed
// files are parsed and upserted, files gone from disk are deleted. Files
// that fail to read or parse are logged and counted, never fatal.
func Sync(ctx context.Context, db *DB, store storage.Provider, logger *slog.Logger) (SyncStats, error) {
	var stats SyncStats
	start := time.Now()

	metas, err := store.List("")
	if err != nil {
		return stats, fmt.Errorf("index: sync: %w", err)
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return stats, fmt.Errorf("index: sync: %w", err)
	}

	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		onDisk[m.Path] = struct{}{}
		if checksums[m.Path] == m.Checksum {
			stats.Unchanged++
			continue
		}

		data, err := store.Read(m.Path)
		if err == nil {
			err = IndexFile(db, m.Path, data, m.UpdatedAt)
		}
		if err != nil {
			stats.Failed++
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		stats.Indexed++
	}

	for p := range checksums {
		if _, ok := onDisk[p]; ok {
			continue
		}
		if err := db.DeleteNote(p); err != nil {
			stats.Failed++
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
	}

	logger.Info("sync: done",
		slog.Int("indexed", stats.Indexed),
		slog.Int("removed", stats.Removed),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("failed", stats.Failed),
		slog.Duration("took", time.Since(start)))
	return stats, nil
}

// IndexFile parses data and upserts the note with every link occurrence.
// A zero modTime means now.
func IndexFile(db NoteIndex, path string, data []byte, modTime time.Time) error {
	res, err := parser.Parse(data)
	if err != nil {
		return fmt.Errorf("index: parse %s: %w", path, err)
	}

	links := make([]LinkRow, 0, len(res.Links))
	for _, l := range res.Links {
		links = append(links, LinkRow{Target: l.Target, Line: l.Line, Col: l.Col, Raw: l.Raw})
	}

	if modTime.IsZero() {
		modTime = time.Now()
	}
	row := NoteRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  storage.Checksum(data),
		Tags:      res.Tags,
		CreatedAt: res.Created,
		UpdatedAt: modTime,
	}
	return db.UpsertNote(row, res.Body, links)
}
