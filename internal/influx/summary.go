package influx

import (
	"context"
	"fmt"

	"github.com/starford/influx/internal/models"
	"github.com/starford/influx/internal/parser"
)

// Excerpt is the Markdown block of a linking note around one or more
// references to the focal note. Lines are 1-based and inclusive.
type Excerpt struct {
	StartLine int              `json:"start_line"`
	EndLine   int              `json:"end_line"`
	Text      string           `json:"text"`
	Refs      []models.LinkRef `json:"refs"`
}

// Summary is everything one linking note says about the focal note.
type Summary struct {
	Document models.Document `json:"document"`
	Focal    string          `json:"focal"`
	Excerpts []Excerpt       `json:"excerpts"`
}

// ContentReader reads the raw content of a note.
type ContentReader interface {
	Content(ctx context.Context, doc models.Document) ([]byte, error)
}

// Summarizer builds a Summary from a linking note's content.
type Summarizer struct {
	content ContentReader
}

// NewSummarizer returns a Summarizer reading through content.
func NewSummarizer(content ContentReader) *Summarizer {
	return &Summarizer{content: content}
}

// Summarize extracts the block around every reference in refs. References
// inside the same block share one excerpt; references whose line no longer
// exists in the note are dropped.
func (s *Summarizer) Summarize(ctx context.Context, doc models.Document, refs []models.LinkRef, focal models.Document) (*Summary, error) {
	data, err := s.content.Content(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("influx: summarize %s: %w", doc.Path, err)
	}
	content := string(data)

	sum := &Summary{Document: doc, Focal: focal.Path, Excerpts: []Excerpt{}}
	byStart := make(map[int]int)
	for _, ref := range refs {
		start, end, text, ok := parser.BlockAt(content, ref.Line)
		if !ok {
			continue
		}
		if i, seen := byStart[start]; seen {
			sum.Excerpts[i].Refs = append(sum.Excerpts[i].Refs, ref)
			continue
		}
		byStart[start] = len(sum.Excerpts)
		sum.Excerpts = append(sum.Excerpts, Excerpt{
			StartLine: start,
			EndLine:   end,
			Text:      text,
			Refs:      []models.LinkRef{ref},
		})
	}
	return sum, nil
}
