package influx

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/wikilink"

	"github.com/starford/influx/internal/parser"
	"github.com/starford/influx/internal/settings"
)

// Fragment is the display-ready rendering of one Summary.
type Fragment struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	HTML      string    `json:"html"`
}

// LinkResolver maps a wikilink target written in source to the note path it
// names.
type LinkResolver interface {
	ResolveLink(ctx context.Context, target, source string) (string, error)
}

// Renderer turns summaries into HTML fragments. Wikilinks in excerpts become
// links to the notes they resolve to.
type Renderer struct {
	links LinkResolver
}

// NewRenderer returns a Renderer using GitHub-flavoured Markdown. With a nil
// links, wikilink targets are only normalised.
func NewRenderer(links LinkResolver) *Renderer {
	return &Renderer{links: links}
}

func (r *Renderer) markdown(ctx context.Context, source string) goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			&wikilink.Extender{Resolver: noteLinks{ctx: ctx, links: r.links, source: source}},
		),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
}

// noteLinks resolves the wikilinks of one source note.
type noteLinks struct {
	ctx    context.Context
	links  LinkResolver
	source string
}

func (n noteLinks) ResolveWikilink(node *wikilink.Node) ([]byte, error) {
	target := string(node.Target)
	dest := target
	if ext := path.Ext(target); target != "" && (ext == "" || ext == ".md") {
		dest = parser.ResolveTarget(target)
		if n.links != nil {
			if p, err := n.links.ResolveLink(n.ctx, target, n.source); err == nil && p != "" {
				dest = p
			}
		}
	}
	if len(node.Fragment) > 0 {
		dest += "#" + string(node.Fragment)
	}
	return []byte(dest), nil
}

// Render orders a copy of summaries by the configured principle and
// attribute, truncates it to the list limit and renders each entry.
func (r *Renderer) Render(ctx context.Context, summaries []*Summary, s settings.Settings) ([]Fragment, error) {
	ordered := slices.Clone(summaries)
	slices.SortStableFunc(ordered, func(a, b *Summary) int {
		ta, tb := sortKey(a, s.SortingAttribute), sortKey(b, s.SortingAttribute)
		c := ta.Compare(tb)
		if s.SortingPrinciple == settings.NewestFirst {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.Document.Path, b.Document.Path)
	})
	if s.ListLimit > 0 && len(ordered) > s.ListLimit {
		ordered = ordered[:s.ListLimit]
	}

	out := make([]Fragment, 0, len(ordered))
	for _, sum := range ordered {
		var buf bytes.Buffer
		md := r.markdown(ctx, sum.Document.Path)
		for i, ex := range sum.Excerpts {
			if i > 0 {
				buf.WriteString("<hr>\n")
			}
			if err := md.Convert([]byte(ex.Text), &buf); err != nil {
				return nil, fmt.Errorf("influx: render %s: %w", sum.Document.Path, err)
			}
		}
		title := sum.Document.Title
		if title == "" {
			title = strings.TrimSuffix(sum.Document.Path, ".md")
		}
		out = append(out, Fragment{
			Path:      sum.Document.Path,
			Title:     title,
			CreatedAt: sum.Document.CreatedAt,
			UpdatedAt: sum.Document.UpdatedAt,
			HTML:      buf.String(),
		})
	}
	return out, nil
}

func sortKey(s *Summary, attr settings.SortAttribute) time.Time {
	if attr == settings.SortByModified {
		return s.Document.UpdatedAt
	}
	return s.Document.CreatedAt
}
