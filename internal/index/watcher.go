package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/influx/internal/storage"
)

// Mutation kinds reported by the watcher.
const (
	EventModified = "modified"
	EventDeleted  = "deleted"
)

const (
	// settleDelay coalesces the burst of writes an editor makes on save.
	settleDelay    = 50 * time.Millisecond
	reconcileDelay = 200 * time.Millisecond
)

// EventCallback is called after a watcher-driven index change with
// EventModified (created or rewritten) or EventDeleted.
type EventCallback func(kind string, path string)

// Watcher keeps the index in step with changes made to the vault outside the
// API. A change is reported only when it altered what the index holds, so a
// file the API already indexed is not announced twice.
type Watcher struct {
	db     *DB
	store  storage.Provider
	root   string
	logger *slog.Logger
	emit   EventCallback

	pending map[string]struct{}
}

// NewWatcher returns a Watcher over the vault at root. cb may be nil.
func NewWatcher(db *DB, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) *Watcher {
	if cb == nil {
		cb = func(string, string) {}
	}
	return &Watcher{
		db:      db,
		store:   store,
		root:    root,
		logger:  logger,
		emit:    cb,
		pending: make(map[string]struct{}),
	}
}

// Watch runs a Watcher until ctx is cancelled.
func Watch(ctx context.Context, db *DB, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	return NewWatcher(db, store, vaultRoot, logger, cb).Run(ctx)
}

// Run processes file system events until ctx is cancelled. Directories
// created at runtime are watched as they appear; renames trigger a
// reconciliation pass against the whole vault.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("index: watch: %w", err)
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return fmt.Errorf("index: watch %s: %w", w.root, err)
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	settle := &debounce{delay: settleDelay}
	reconcile := &debounce{delay: reconcileDelay}
	defer settle.stop()
	defer reconcile.stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case <-settle.C():
			settle.fired()
			w.flush()

		case <-reconcile.C():
			reconcile.fired()
			w.reconcile()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, ev, settle, reconcile)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event, settle, reconcile *debounce) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if storage.IsHidden(info.Name()) {
				return
			}
			if err := addDirsRecursive(fw, ev.Name); err != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
				return
			}
			w.logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
			w.indexDir(ev.Name)
			return
		}
	}

	if !storage.IsNote(ev.Name) {
		return
	}
	rel, ok := w.rel(ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.pending[rel] = struct{}{}
		settle.schedule()

	case ev.Op&fsnotify.Remove != 0:
		delete(w.pending, rel)
		w.remove(rel)

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports the old path only; the new one arrives as a
		// Create when it stays inside a watched directory.
		delete(w.pending, rel)
		w.remove(rel)
		reconcile.schedule()
	}
}

// flush indexes every path written since the last flush.
func (w *Watcher) flush() {
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	slices.Sort(paths)

	for _, p := range paths {
		w.index(p)
	}
}

// index re-indexes rel with its file mtime and reports it unless its
// content matches the index.
func (w *Watcher) index(rel string) {
	doc, err := w.store.Stat(rel)
	var data []byte
	if err == nil {
		data, err = w.store.Read(rel)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.remove(rel)
			return
		}
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if cs, _ := w.db.GetChecksum(rel); cs == storage.Checksum(data) {
		w.logger.Debug("watcher: unchanged", slog.String("path", rel))
		return
	}
	if err := IndexFile(w.db, rel, data, doc.UpdatedAt); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: indexed", slog.String("path", rel))
	w.emit(EventModified, rel)
}

// remove drops rel from the index and reports it if it was indexed.
func (w *Watcher) remove(rel string) {
	if cs, _ := w.db.GetChecksum(rel); cs == "" {
		return
	}
	if err := w.db.DeleteNote(rel); err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: deleted", slog.String("path", rel))
	w.emit(EventDeleted, rel)
}

// reconcile compares index checksums with the vault: entries without a
// file are removed, files the index does not match are indexed.
func (w *Watcher) reconcile() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := w.store.List("")
	if err != nil {
		w.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = struct{}{}
		if checksums[m.Path] != m.Checksum {
			w.index(m.Path)
		}
	}
	for p := range checksums {
		if _, ok := onDisk[p]; !ok {
			w.remove(p)
		}
	}
}

// indexDir indexes every note below a newly created directory.
func (w *Watcher) indexDir(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsNote(path) {
			return nil
		}
		if rel, ok := w.rel(path); ok {
			w.index(rel)
		}
		return nil
	})
}

func (w *Watcher) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// debounce is a resettable one-shot timer whose channel is nil while idle.
type debounce struct {
	delay time.Duration
	timer *time.Timer
	c     <-chan time.Time
}

func (d *debounce) C() <-chan time.Time { return d.c }

func (d *debounce) schedule() {
	if d.timer == nil {
		d.timer = time.NewTimer(d.delay)
	} else {
		d.timer.Reset(d.delay)
	}
	d.c = d.timer.C
}

func (d *debounce) fired() { d.c = nil }

func (d *debounce) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// skipping hidden ones.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && storage.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
