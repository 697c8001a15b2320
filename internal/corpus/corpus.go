// Package corpus joins vault storage and the backlink index into the read
// contracts influx views are built from.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/starford/influx/internal/apperr"
	"github.com/starford/influx/internal/index"
	"github.com/starford/influx/internal/models"
	"github.com/starford/influx/internal/parser"
	"github.com/starford/influx/internal/storage"
)

// Adapter resolves documents against the vault and answers backlink
// queries from the index. Every call goes to the live store; nothing is cached.
type Adapter struct {
	store storage.Provider
	db    index.NoteIndex
}

// New returns an Adapter over store and db.
func New(store storage.Provider, db index.NoteIndex) *Adapter {
	return &Adapter{store: store, db: db}
}

// Document resolves path to a live handle. A path that no longer resolves
// yields apperr.ErrNotFound.
func (a *Adapter) Document(_ context.Context, path string) (models.Document, error) {
	doc, err := a.store.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return models.Document{}, fmt.Errorf("corpus: %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("corpus: document: %w", err)
	}

	row, err := a.db.GetNote(doc.Path)
	switch {
	case err == nil:
		doc.Title = row.Title
		if !row.CreatedAt.IsZero() {
			doc.CreatedAt = row.CreatedAt
		}
	case !errors.Is(err, apperr.ErrNotFound):
		return models.Document{}, fmt.Errorf("corpus: document: %w", err)
	}
	return *doc, nil
}

// Metadata returns the frontmatter snapshot of doc, read from its content.
func (a *Adapter) Metadata(ctx context.Context, doc models.Document) (models.Metadata, error) {
	data, err := a.Content(ctx, doc)
	if err != nil {
		return models.Metadata{}, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return models.Metadata{}, fmt.Errorf("corpus: metadata: %w", err)
	}
	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}
	return models.Metadata{
		Title:       res.Title,
		Tags:        tags,
		Frontmatter: res.Frontmatter,
		Checksum:    storage.Checksum(data),
	}, nil
}

// Backlinks queries the index for the notes linking to doc.
func (a *Adapter) Backlinks(_ context.Context, doc models.Document) (models.BacklinkSet, error) {
	bl, err := a.db.Backlinks(doc.Path)
	if err != nil {
		return models.BacklinkSet{}, fmt.Errorf("corpus: backlinks: %w", err)
	}
	return bl, nil
}

// ResolveLink maps a wikilink target written in source to a note path.
func (a *Adapter) ResolveLink(_ context.Context, target, source string) (string, error) {
	p, err := a.db.ResolveLink(target, source)
	if err != nil {
		return "", fmt.Errorf("corpus: resolve link: %w", err)
	}
	return p, nil
}

// Content reads the raw bytes of doc.
func (a *Adapter) Content(_ context.Context, doc models.Document) ([]byte, error) {
	data, err := a.store.Read(doc.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("corpus: %s: %w", doc.Path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("corpus: content: %w", err)
	}
	return data, nil
}
