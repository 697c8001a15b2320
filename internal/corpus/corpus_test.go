package corpus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/influx/internal/apperr"
	"github.com/starford/influx/internal/models"
	"github.com/starford/influx/internal/testutil"
)

func TestDocument_ResolvesWithIndexedCreated(t *testing.T) {
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	testutil.WriteNote(t, store, db, "a.md", "---\ntitle: Alpha\ncreated: 2023-02-03\n---\nbody")

	doc, err := New(store, db).Document(context.Background(), "a.md")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc.Title != "Alpha" {
		t.Errorf("title = %q", doc.Title)
	}
	want := time.Date(2023, 2, 3, 0, 0, 0, 0, time.UTC)
	if !doc.CreatedAt.Equal(want) {
		t.Errorf("created = %v, want %v", doc.CreatedAt, want)
	}
}

func TestDocument_MissingIsNotFound(t *testing.T) {
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	_, err := New(store, db).Document(context.Background(), "gone.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDocument_UnindexedStillResolves(t *testing.T) {
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	if err := store.Write("raw.md", []byte("x")); err != nil {
		t.Fatal(err)
	}
	doc, err := New(store, db).Document(context.Background(), "raw.md")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("expected mtime fallback for created")
	}
}

func TestMetadataAndBacklinks(t *testing.T) {
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	testutil.WriteNote(t, store, db, "f.md", "---\ntags: [x]\n---\n# Focal")
	testutil.WriteNote(t, store, db, "a.md", "see [[f]]")

	a := New(store, db)
	ctx := context.Background()
	focal := models.Document{Path: "f.md"}

	md, err := a.Metadata(ctx, focal)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if md.Title != "Focal" || len(md.Tags) != 1 || md.Checksum == "" {
		t.Errorf("metadata = %+v", md)
	}

	bl, err := a.Backlinks(ctx, focal)
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if !bl.Has("a.md") || bl.Len() != 1 {
		t.Errorf("backlinks = %+v", bl)
	}
}

func TestContent_MissingIsNotFound(t *testing.T) {
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	_, err := New(store, db).Content(context.Background(), models.Document{Path: "nope.md"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
