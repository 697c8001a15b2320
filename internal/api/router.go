package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/influx/internal/hub"
	"github.com/starford/influx/internal/influx"
	"github.com/starford/influx/internal/noteservice"
)

// RouterConfig holds what the API routes are served from.
type RouterConfig struct {
	Notes     *noteservice.Service
	Engine    *influx.Engine
	Scheduler *hub.Scheduler
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events      http.Handler
	AuthEnabled bool
	Token       string
}

// NewRouter creates a chi router with all API routes mounted.
// AuthEnabled controls whether Bearer token auth is enforced.
func NewRouter(cfg RouterConfig) chi.Router {
	h := NewHandler(cfg.Notes, cfg.Engine, cfg.Scheduler)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)
	r.Post("/move", h.MoveNote)

	// Backlinks and influx views.
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/influx/stream/*", h.StreamInflux)
	r.Get("/influx/*", h.GetInflux)

	// Notifications.
	r.Post("/open/*", h.OpenNote)
	r.Post("/layout", h.LayoutChanged)
	r.Post("/refresh", h.RefreshAll)

	// Settings.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.SaveSettings)
	r.Post("/settings/sort-order", h.ToggleSortOrder)

	// SSE endpoint (protected by same auth middleware).
	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
