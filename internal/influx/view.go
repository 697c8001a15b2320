package influx

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/influx/internal/apperr"
	"github.com/starford/influx/internal/metrics"
	"github.com/starford/influx/internal/models"
	"github.com/starford/influx/internal/policy"
)

// View is the live influx of one focal note: the summaries of every
// eligible linking note plus its display state.
//
// Rebuilds of one View never overlap. A Rebuild call that finds another in
// flight returns immediately without doing any work.
type View struct {
	id     string
	engine *Engine

	busy atomic.Bool

	mu        sync.RWMutex
	focal     models.Document
	meta      models.Metadata
	backlinks models.BacklinkSet
	summaries []*Summary
	show      bool
	collapsed bool
	fragments []Fragment
	builtAt   time.Time
}

// Snapshot is an immutable copy of a View's public state.
type Snapshot struct {
	ID        string             `json:"id"`
	Focal     models.Document    `json:"focal"`
	Metadata  models.Metadata    `json:"metadata"`
	Backlinks models.BacklinkSet `json:"backlinks"`
	Summaries []Summary          `json:"summaries"`
	Show      bool               `json:"show"`
	Collapsed bool               `json:"collapsed"`
	Fragments []Fragment         `json:"fragments"`
	BuiltAt   time.Time          `json:"built_at"`
}

func newView(e *Engine, focal models.Document, meta models.Metadata) *View {
	v := &View{
		id:        uuid.NewString(),
		engine:    e,
		focal:     focal,
		meta:      meta,
		backlinks: models.NewBacklinkSet(),
		summaries: []*Summary{},
	}
	v.show, v.collapsed = e.displayStatus(focal.Path)
	return v
}

// ID returns the identifier minted for this View.
func (v *View) ID() string {
	return v.id
}

// Focal returns the focal document.
func (v *View) Focal() models.Document {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.focal
}

// HasSource reports whether path is among the linking notes of the
// currently published summaries.
func (v *View) HasSource(path string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, s := range v.summaries {
		if s.Document.Path == path {
			return true
		}
	}
	return false
}

// ShouldUpdate queries the index afresh and reports whether doc currently
// links to the focal note.
func (v *View) ShouldUpdate(ctx context.Context, doc models.Document) bool {
	bl, err := v.engine.corpus.Backlinks(ctx, v.Focal())
	if err != nil {
		v.engine.logger.Warn("influx: backlink query failed",
			slog.String("focal", v.Focal().Path),
			slog.String("error", err.Error()))
		return false
	}
	return bl.Has(doc.Path)
}

// Rebuild recomputes the summaries from the current index and vault. It
// reports false when another rebuild of this View was already in flight.
// The published summaries are replaced only once every linking note has
// been processed, in the order the index enumerated them.
func (v *View) Rebuild(ctx context.Context) (bool, error) {
	if !v.busy.CompareAndSwap(false, true) {
		metrics.Rebuilds.WithLabelValues(metrics.ResultDropped).Inc()
		return false, nil
	}
	defer v.busy.Store(false)

	start := time.Now()
	e := v.engine
	cur := e.settings.Get()
	focal := v.refreshFocal(ctx)

	bl, err := e.corpus.Backlinks(ctx, focal)
	if err != nil {
		metrics.Rebuilds.WithLabelValues(metrics.ResultError).Inc()
		return true, err
	}

	src := policy.NewSource(cur, e.matcher)
	candidates := make([]string, 0, len(bl.Sources))
	for _, p := range bl.Sources {
		if p == focal.Path || !src.IsIncludable(p) {
			continue
		}
		candidates = append(candidates, p)
	}

	slots := make([]*Summary, len(candidates))
	var g errgroup.Group
	if e.fanoutLimit > 0 {
		g.SetLimit(e.fanoutLimit)
	}
	for i, path := range candidates {
		g.Go(func() error {
			slots[i] = e.summarize(ctx, path, bl.Refs[path], focal)
			return nil
		})
	}
	_ = g.Wait()

	summaries := make([]*Summary, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			summaries = append(summaries, s)
		}
	}

	show, collapsed := e.displayStatus(focal.Path)
	var fragments []Fragment
	if show {
		fragments = e.render(ctx, summaries, cur, focal.Path)
	}

	meta, err := e.corpus.Metadata(ctx, focal)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		e.logger.Warn("influx: focal metadata unavailable",
			slog.String("focal", focal.Path),
			slog.String("error", err.Error()))
	}

	v.mu.Lock()
	if err == nil {
		v.meta = meta
	}
	v.backlinks = bl
	v.summaries = summaries
	v.show = show
	v.collapsed = collapsed
	v.fragments = fragments
	v.builtAt = time.Now()
	v.mu.Unlock()

	metrics.Rebuilds.WithLabelValues(metrics.ResultOK).Inc()
	metrics.RebuildDuration.Observe(time.Since(start).Seconds())
	e.logger.Debug("influx: rebuilt",
		slog.String("view", v.id),
		slog.String("focal", focal.Path),
		slog.Int("candidates", len(candidates)),
		slog.Int("summaries", len(summaries)))
	return true, nil
}

// Render re-renders the current summaries with the current settings. It
// reports whether fragments were produced; a hidden View renders nothing.
func (v *View) Render(ctx context.Context) bool {
	e := v.engine
	cur := e.settings.Get()
	focal := v.Focal()
	show, collapsed := e.displayStatus(focal.Path)

	v.mu.RLock()
	summaries := v.summaries
	v.mu.RUnlock()

	var fragments []Fragment
	if show {
		fragments = e.render(ctx, summaries, cur, focal.Path)
	}

	v.mu.Lock()
	v.show = show
	v.collapsed = collapsed
	v.fragments = fragments
	v.mu.Unlock()
	return show
}

// Snapshot returns a copy of the View's current state.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	summaries := make([]Summary, len(v.summaries))
	for i, s := range v.summaries {
		summaries[i] = *s
	}
	fragments := slices.Clone(v.fragments)
	if fragments == nil {
		fragments = []Fragment{}
	}
	return Snapshot{
		ID:        v.id,
		Focal:     v.focal,
		Metadata:  v.meta,
		Backlinks: v.backlinks,
		Summaries: summaries,
		Show:      v.show,
		Collapsed: v.collapsed,
		Fragments: fragments,
		BuiltAt:   v.builtAt,
	}
}

// refreshFocal re-resolves the focal note, keeping the old handle when it
// no longer resolves.
func (v *View) refreshFocal(ctx context.Context) models.Document {
	focal := v.Focal()
	doc, err := v.engine.corpus.Document(ctx, focal.Path)
	if err != nil {
		return focal
	}
	v.mu.Lock()
	v.focal = doc
	v.mu.Unlock()
	return doc
}
