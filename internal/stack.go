package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/influx/internal/corpus"
	"github.com/starford/influx/internal/hub"
	"github.com/starford/influx/internal/index"
	"github.com/starford/influx/internal/influx"
	"github.com/starford/influx/internal/models"
	"github.com/starford/influx/internal/noteservice"
	"github.com/starford/influx/internal/policy"
	"github.com/starford/influx/internal/settings"
	"github.com/starford/influx/internal/storage"
)

// stack is the wired core shared by the HTTP server and the MCP server.
type stack struct {
	store    storage.Provider
	db       *index.DB
	settings *settings.Store
	sched    *hub.Scheduler
	engine   *influx.Engine
	notes    *noteservice.Service
}

func newStack(ctx context.Context, cfg *Config, logger *slog.Logger) (*stack, error) {
	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if _, err := index.Sync(ctx, db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	prefs, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init settings: %w", err)
	}

	sched := hub.NewScheduler(hub.NewRegistry(), prefs, logger)
	engine := influx.NewEngine(corpus.New(store, db), prefs,
		influx.WithLogger(logger),
		influx.WithFanoutLimit(cfg.Influx.FanoutLimit),
		influx.WithMatcher(policy.NewMatcher(logger)),
	)

	return &stack{
		store:    store,
		db:       db,
		settings: prefs,
		sched:    sched,
		engine:   engine,
		notes:    noteservice.NewService(store, db, sched),
	}, nil
}

func (s *stack) Close() error {
	return s.db.Close()
}

// notifyVaultEvent forwards a watcher-driven index change to the scheduler.
func (s *stack) notifyVaultEvent(ctx context.Context, kind, path string) {
	op := hub.OpContentModified
	if kind == index.EventDeleted {
		op = hub.OpDeleted
	}

	doc := &models.Document{Path: path}
	if op == hub.OpContentModified {
		d, err := s.store.Stat(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				slog.Warn("vault event: stat failed", slog.String("path", path), slog.String("error", err.Error()))
			}
			return
		}
		doc = d
	}
	s.sched.Notify(ctx, op, doc)
}
