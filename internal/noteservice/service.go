// Package noteservice coordinates vault storage, the backlink index and the
// influx scheduler for note CRUD.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/starford/influx/internal/apperr"
	"github.com/starford/influx/internal/hub"
	"github.com/starford/influx/internal/index"
	"github.com/starford/influx/internal/models"
	"github.com/starford/influx/internal/parser"
	"github.com/starford/influx/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Backlinks   []string       `json:"backlinks"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Notifier receives vault mutations.
type Notifier interface {
	Notify(ctx context.Context, op hub.Op, doc *models.Document)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, hub.Op, *models.Document) {}

// Service coordinates storage and index operations.
type Service struct {
	store    storage.Provider
	db       index.NoteIndex
	notifier Notifier
}

// NewService creates a new note service. A nil notifier discards mutations.
func NewService(store storage.Provider, db index.NoteIndex, notifier Notifier) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{store: store, db: db, notifier: notifier}
}

// GetNote reads a note from storage, parses it, and enriches with backlinks.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildNoteDetail(path, data)
}

// CreateNote writes a new note, indexes it and announces it.
func (s *Service) CreateNote(ctx context.Context, path string, content []byte) (*NoteDetail, error) {
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.reindex(path, content); err != nil {
		return nil, err
	}
	note, err := s.buildNoteDetail(path, content)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, hub.OpContentModified, path)
	return note, nil
}

// UpdateNote writes updated content with optimistic concurrency.
func (s *Service) UpdateNote(ctx context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != storage.Checksum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.reindex(path, content); err != nil {
		return nil, err
	}
	note, err := s.buildNoteDetail(path, content)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, hub.OpContentModified, path)
	return note, nil
}

// DeleteNote removes a note from storage and index.
func (s *Service) DeleteNote(ctx context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	if err := s.db.DeleteNote(path); err != nil {
		return err
	}
	s.announce(ctx, hub.OpDeleted, path)
	return nil
}

// MoveNote renames a note. Live views see the old path deleted and the new
// path written.
func (s *Service) MoveNote(ctx context.Context, from, to string) (*NoteDetail, error) {
	if err := s.store.Move(from, to); err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, apperr.ErrNotFound
		case errors.Is(err, os.ErrExist):
			return nil, apperr.ErrAlreadyExists
		}
		return nil, err
	}
	data, err := s.store.Read(to)
	if err != nil {
		return nil, fmt.Errorf("noteservice: move: %w", err)
	}
	if err := s.reindex(to, data); err != nil {
		return nil, err
	}
	if err := s.db.DeleteNote(from); err != nil {
		return nil, err
	}
	note, err := s.buildNoteDetail(to, data)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, hub.OpDeleted, from)
	s.announce(ctx, hub.OpContentModified, to)
	return note, nil
}

// Open marks the note at path as opened, so live views of it refresh.
func (s *Service) Open(ctx context.Context, path string) (*models.Document, error) {
	doc, err := s.store.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	s.notifier.Notify(ctx, hub.OpFocalOpened, doc)
	return doc, nil
}

// ListNotes returns paginated notes with optional tag filter.
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag, sort string) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(limit, offset, tag, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			Path:      r.Path,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Backlinks returns the backlink set of the note at target.
func (s *Service) Backlinks(_ context.Context, target string) (models.BacklinkSet, error) {
	bl, err := s.db.Backlinks(target)
	if err != nil {
		return models.BacklinkSet{}, fmt.Errorf("noteservice: backlinks: %w", err)
	}
	return bl, nil
}

// reindex indexes data as the content of path, stamped with the file's
// mtime like a vault sync would.
func (s *Service) reindex(path string, data []byte) error {
	var mtime time.Time
	if doc, err := s.store.Stat(path); err == nil {
		mtime = doc.UpdatedAt
	}
	return index.IndexFile(s.db, path, data, mtime)
}

// announce notifies the scheduler about a mutation of path. The document
// handle is resolved when it still exists.
func (s *Service) announce(ctx context.Context, op hub.Op, path string) {
	doc := &models.Document{Path: path}
	if d, err := s.store.Stat(path); err == nil {
		doc = d
	}
	s.notifier.Notify(ctx, op, doc)
}

// buildNoteDetail constructs a NoteDetail from raw data without re-reading the file.
func (s *Service) buildNoteDetail(path string, data []byte) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(path)
	if err != nil {
		return nil, err
	}
	detail := &NoteDetail{
		Path:        path,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    storage.Checksum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Backlinks:   nonNilSlice(bl.Sources),
		UpdatedAt:   time.Now(),
	}
	if row, err := s.db.GetNote(path); err == nil {
		detail.CreatedAt = row.CreatedAt
		detail.UpdatedAt = row.UpdatedAt
	}
	return detail, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
