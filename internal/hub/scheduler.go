package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/starford/influx/internal/metrics"
	"github.com/starford/influx/internal/models"
	"github.com/starford/influx/internal/settings"
)

// SettingsStore is the persisted settings the scheduler reads and toggles.
type SettingsStore interface {
	Get() settings.Settings
	Save(next settings.Settings) error
	Update(fn func(*settings.Settings)) (settings.Settings, error)
}

// Scheduler receives vault mutations and broadcasts them to every consumer
// in the registry.
type Scheduler struct {
	registry *Registry
	settings SettingsStore
	logger   *slog.Logger

	refreshing atomic.Bool
}

// NewScheduler returns a scheduler broadcasting to registry.
func NewScheduler(registry *Registry, store SettingsStore, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{registry: registry, settings: store, logger: logger}
}

// Registry returns the registry the scheduler broadcasts to.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Settings returns the current settings.
func (s *Scheduler) Settings() settings.Settings {
	return s.settings.Get()
}

// Notify delivers a mutation to every consumer and returns once all of them
// have returned. A document-carrying notification is dropped when live
// updates are off. Without a document only layout and settings
// notifications are delivered.
func (s *Scheduler) Notify(ctx context.Context, op Op, doc *models.Document) {
	cur := s.settings.Get()

	if doc == nil {
		if op != OpLayoutChanged && op != OpSettingsSaved {
			return
		}
	} else if !cur.LiveUpdate {
		return
	}

	metrics.Notifications.WithLabelValues(string(op)).Inc()
	s.broadcast(ctx, Event{Op: op, Document: doc, Style: NewStyle(cur)})
}

// RefreshAll asks every consumer to rebuild. It returns false without doing
// anything when another bulk refresh is still in flight.
func (s *Scheduler) RefreshAll(ctx context.Context) bool {
	if !s.refreshing.CompareAndSwap(false, true) {
		metrics.RefreshSkipped.Inc()
		s.logger.Debug("scheduler: refresh skipped, one in flight")
		return false
	}
	defer s.refreshing.Store(false)

	metrics.Notifications.WithLabelValues(string(OpRefresh)).Inc()
	s.broadcast(ctx, Event{Op: OpRefresh, Style: NewStyle(s.settings.Get())})
	return true
}

// ToggleSortOrder flips the sorting principle, persists it and notifies
// every consumer.
func (s *Scheduler) ToggleSortOrder(ctx context.Context) (settings.Settings, error) {
	next, err := s.settings.Update(func(cur *settings.Settings) {
		cur.SortingPrinciple = cur.SortingPrinciple.Toggle()
	})
	if err != nil {
		return next, fmt.Errorf("scheduler: toggle sort order: %w", err)
	}
	s.Notify(ctx, OpSettingsSaved, nil)
	return next, nil
}

// SaveSettings persists next and notifies every consumer.
func (s *Scheduler) SaveSettings(ctx context.Context, next settings.Settings) error {
	if err := s.settings.Save(next); err != nil {
		return fmt.Errorf("scheduler: save settings: %w", err)
	}
	s.Notify(ctx, OpSettingsSaved, nil)
	return nil
}

func (s *Scheduler) broadcast(ctx context.Context, ev Event) {
	var g errgroup.Group
	for id, cb := range s.registry.Snapshot() {
		g.Go(func() error {
			s.invoke(ctx, id, cb, ev)
			return nil
		})
	}
	_ = g.Wait()
}

// invoke runs one callback, containing its error or panic.
func (s *Scheduler) invoke(ctx context.Context, id string, cb Callback, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ConsumerFailures.Inc()
			s.logger.Error("scheduler: consumer panicked",
				slog.String("consumer", id),
				slog.String("op", string(ev.Op)),
				slog.Any("panic", r))
		}
	}()
	if err := cb(ctx, ev); err != nil {
		metrics.ConsumerFailures.Inc()
		s.logger.Warn("scheduler: consumer failed",
			slog.String("consumer", id),
			slog.String("op", string(ev.Op)),
			slog.String("error", err.Error()))
	}
}
