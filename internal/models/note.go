// Package models defines the domain types for Influx.
package models

import "time"

// Document is a live handle to a note in the vault.
type Document struct {
	Path      string    `json:"path"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata is the frontmatter/structure snapshot of a document.
type Metadata struct {
	Title       string         `json:"title,omitempty"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Checksum    string         `json:"checksum"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LinkRef is one reference location inside a linking note. Line and Col are
// 1-based and absolute within the file, frontmatter included.
type LinkRef struct {
	Line int    `json:"line"`
	Col  int    `json:"col"`
	Raw  string `json:"raw"`
}

// BacklinkSet maps linking-note paths to the reference locations pointing at
// a target. Sources keeps the enumeration order of the index query.
type BacklinkSet struct {
	Sources []string             `json:"sources"`
	Refs    map[string][]LinkRef `json:"refs"`
}

// NewBacklinkSet returns an empty set.
func NewBacklinkSet() BacklinkSet {
	return BacklinkSet{Sources: []string{}, Refs: make(map[string][]LinkRef)}
}

// Add appends a reference for source, registering source on first sight.
func (b *BacklinkSet) Add(source string, ref LinkRef) {
	if b.Refs == nil {
		b.Refs = make(map[string][]LinkRef)
	}
	if _, ok := b.Refs[source]; !ok {
		b.Sources = append(b.Sources, source)
	}
	b.Refs[source] = append(b.Refs[source], ref)
}

// Has reports whether source links to the target.
func (b BacklinkSet) Has(source string) bool {
	_, ok := b.Refs[source]
	return ok
}

// Len returns the number of distinct linking notes.
func (b BacklinkSet) Len() int {
	return len(b.Sources)
}
