// Package influx builds and maintains the live backlink view of a focal
// note: one summary per linking note, kept current as the vault changes.
package influx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/influx/internal/apperr"
	"github.com/starford/influx/internal/hub"
	"github.com/starford/influx/internal/metrics"
	"github.com/starford/influx/internal/models"
	"github.com/starford/influx/internal/policy"
	"github.com/starford/influx/internal/settings"
)

// Corpus is the read side of the vault views are built from.
type Corpus interface {
	ContentReader
	// Document resolves a path; a path that no longer resolves yields an
	// error wrapping apperr.ErrNotFound.
	Document(ctx context.Context, path string) (models.Document, error)
	Metadata(ctx context.Context, doc models.Document) (models.Metadata, error)
	Backlinks(ctx context.Context, doc models.Document) (models.BacklinkSet, error)
}

// SettingsReader returns the current settings.
type SettingsReader interface {
	Get() settings.Settings
}

// Registrar is where consumers are mounted.
type Registrar interface {
	Register(id string, cb hub.Callback) bool
	Deregister(id string) bool
}

// Engine mounts views and holds what they share.
type Engine struct {
	corpus      Corpus
	settings    SettingsReader
	matcher     *policy.Matcher
	summarizer  *Summarizer
	renderer    *Renderer
	logger      *slog.Logger
	fanoutLimit int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithFanoutLimit caps the number of linking notes summarized at once.
// Zero or less means no cap.
func WithFanoutLimit(n int) Option {
	return func(e *Engine) { e.fanoutLimit = n }
}

// WithMatcher shares a pattern matcher with other components.
func WithMatcher(m *policy.Matcher) Option {
	return func(e *Engine) { e.matcher = m }
}

// NewEngine returns an Engine over corpus and settings.
func NewEngine(corpus Corpus, s SettingsReader, opts ...Option) *Engine {
	e := &Engine{
		corpus:     corpus,
		settings:   s,
		summarizer: NewSummarizer(corpus),
		logger:     slog.Default(),
	}
	links, _ := corpus.(LinkResolver)
	e.renderer = NewRenderer(links)
	for _, opt := range opts {
		opt(e)
	}
	if e.matcher == nil {
		e.matcher = policy.NewMatcher(e.logger)
	}
	return e
}

// Mount creates a View for the note at path and builds it once.
func (e *Engine) Mount(ctx context.Context, path string) (*View, error) {
	focal, err := e.corpus.Document(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("influx: mount %s: %w", path, err)
	}
	meta, err := e.corpus.Metadata(ctx, focal)
	if err != nil {
		return nil, fmt.Errorf("influx: mount %s: %w", path, err)
	}

	v := newView(e, focal, meta)
	if _, err := v.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("influx: mount %s: %w", path, err)
	}
	return v, nil
}

// Subscribe mounts a View for path and registers a Consumer for it with reg.
// Every refreshed state is pushed to sink. The returned function deregisters
// the consumer.
func (e *Engine) Subscribe(ctx context.Context, path string, reg Registrar, sink Sink) (*View, func(), error) {
	v, err := e.Mount(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	c := NewConsumer(v, sink, e.logger)
	reg.Register(v.ID(), c.Handle)
	return v, func() { reg.Deregister(v.ID()) }, nil
}

func (e *Engine) displayStatus(path string) (show, collapsed bool) {
	d := policy.NewDisplay(e.settings.Get(), e.matcher)
	return d.ShowStatus(path), d.CollapsedStatus(path)
}

// summarize builds one linking note's summary. Nil means the note is
// skipped: gone from the vault, or its summary failed.
func (e *Engine) summarize(ctx context.Context, path string, refs []models.LinkRef, focal models.Document) *Summary {
	doc, err := e.corpus.Document(ctx, path)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err == nil {
		var sum *Summary
		sum, err = e.summarizer.Summarize(ctx, doc, refs, focal)
		if err == nil {
			return sum
		}
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
	}
	metrics.SummaryFailures.Inc()
	e.logger.Warn("influx: summary failed",
		slog.String("focal", focal.Path),
		slog.String("source", path),
		slog.String("error", err.Error()))
	return nil
}

func (e *Engine) render(ctx context.Context, summaries []*Summary, s settings.Settings, focal string) []Fragment {
	fragments, err := e.renderer.Render(ctx, summaries, s)
	if err != nil {
		e.logger.Warn("influx: render failed",
			slog.String("focal", focal),
			slog.String("error", err.Error()))
		return nil
	}
	return fragments
}
