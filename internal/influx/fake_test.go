package influx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/influx/internal/apperr"
	"github.com/starford/influx/internal/models"
	"github.com/starford/influx/internal/settings"
)

type staticSettings struct {
	s settings.Settings
}

func (s staticSettings) Get() settings.Settings { return s.s.Clone() }

// fakeCorpus is an in-memory Corpus with hooks for timing and failures.
type fakeCorpus struct {
	mu       sync.Mutex
	docs     map[string]models.Document
	content  map[string]string
	links    map[string]models.BacklinkSet
	failing  map[string]error
	delays   map[string]time.Duration
	gate     chan struct{}
	entered  chan struct{}
	enterOne sync.Once

	backlinkCalls atomic.Int32
	inflight      atomic.Int32
	maxInflight   atomic.Int32
}

func newFakeCorpus() *fakeCorpus {
	return &fakeCorpus{
		docs:    make(map[string]models.Document),
		content: make(map[string]string),
		links:   make(map[string]models.BacklinkSet),
		failing: make(map[string]error),
		delays:  make(map[string]time.Duration),
		entered: make(chan struct{}),
	}
}

// add registers a note at path; every target it names gets a backlink at line 1.
func (f *fakeCorpus) add(path, content string, created time.Time, targets ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[path] = models.Document{Path: path, CreatedAt: created, UpdatedAt: created}
	f.content[path] = content
	for _, t := range targets {
		bl, ok := f.links[t]
		if !ok {
			bl = models.NewBacklinkSet()
		}
		bl.Add(path, models.LinkRef{Line: 1, Col: 1, Raw: fmt.Sprintf("[[%s]]", t)})
		f.links[t] = bl
	}
}

func (f *fakeCorpus) remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, path)
	delete(f.content, path)
}

func (f *fakeCorpus) Document(_ context.Context, path string) (models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[path]
	if !ok {
		return models.Document{}, fmt.Errorf("fake: %s: %w", path, apperr.ErrNotFound)
	}
	return d, nil
}

func (f *fakeCorpus) Metadata(_ context.Context, doc models.Document) (models.Metadata, error) {
	return models.Metadata{Title: doc.Path, Tags: []string{}}, nil
}

func (f *fakeCorpus) Backlinks(_ context.Context, doc models.Document) (models.BacklinkSet, error) {
	f.backlinkCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.links[doc.Path]
	out := models.NewBacklinkSet()
	if !ok {
		return out, nil
	}
	for _, s := range src.Sources {
		for _, r := range src.Refs[s] {
			out.Add(s, r)
		}
	}
	return out, nil
}

func (f *fakeCorpus) Content(_ context.Context, doc models.Document) ([]byte, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.maxInflight.Load()
		if n <= peak || f.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}

	f.mu.Lock()
	gate := f.gate
	delay := f.delays[doc.Path]
	failErr := f.failing[doc.Path]
	data, ok := f.content[doc.Path]
	f.mu.Unlock()

	if gate != nil {
		f.enterOne.Do(func() { close(f.entered) })
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if failErr != nil {
		return nil, failErr
	}
	if !ok {
		return nil, fmt.Errorf("fake: %s: %w", doc.Path, apperr.ErrNotFound)
	}
	return []byte(data), nil
}

var errDisk = errors.New("disk on fire")
