package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/influx/internal/apperr"
	"github.com/starford/influx/internal/hub"
	"github.com/starford/influx/internal/influx"
	"github.com/starford/influx/internal/sse"
)

// streamBuffer is the number of pending updates kept per live view stream.
const streamBuffer = 16

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		Raw backlink set of a note
//	@Tags			influx
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	models.BacklinkSet
//	@Security		BearerAuth
//	@Router			/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), path)
	if err != nil {
		slog.Error("backlinks failed", slog.String("path", path), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, bl)
}

// GetInflux handles GET /api/influx/*: builds the view once and returns it.
//
//	@Summary		Influx view of a note
//	@Tags			influx
//	@Produce		json
//	@Param			path	path		string	true	"Focal note path"
//	@Success		200		{object}	InfluxResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/influx/{path} [get]
func (h *Handler) GetInflux(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	v, err := h.engine.Mount(r.Context(), path)
	if err != nil {
		h.influxError(w, path, err)
		return
	}
	writeJSON(w, http.StatusOK, InfluxResponse{
		View:  v.Snapshot(),
		Style: hub.NewStyle(h.sched.Settings()),
	})
}

// StreamInflux handles GET /api/influx/stream/*: mounts a live view and
// streams every update over SSE until the client disconnects.
//
//	@Summary		Live influx view of a note (SSE)
//	@Tags			influx
//	@Produce		text/event-stream
//	@Param			path	path	string	true	"Focal note path"
//	@Success		200
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/influx/stream/{path} [get]
func (h *Handler) StreamInflux(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	ch := make(chan []byte, streamBuffer)
	send := func(eventType string, u influx.Update) {
		raw, err := sse.Encode(sse.Event{Type: eventType, Data: u})
		if err != nil {
			slog.Error("encode influx update failed", slog.String("path", path), slog.String("error", err.Error()))
			return
		}
		select {
		case ch <- raw:
		default:
			// Slow client; the next update carries the full state anyway.
		}
	}

	v, unsubscribe, err := h.engine.Subscribe(r.Context(), path, h.sched.Registry(), func(u influx.Update) {
		send("influx.update", u)
	})
	if err != nil {
		h.influxError(w, path, err)
		return
	}
	defer unsubscribe()

	send("influx.snapshot", influx.Update{View: v.Snapshot(), Style: hub.NewStyle(h.sched.Settings())})
	sse.Stream(w, r, ch)
}

// OpenNote handles POST /api/open/*: announces that a note was opened.
//
//	@Summary		Announce a focal note was opened
//	@Tags			influx
//	@Param			path	path	string	true	"Note path"
//	@Success		202		{object}	models.Document
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/open/{path} [post]
func (h *Handler) OpenNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	doc, err := h.svc.Open(r.Context(), path)
	if err != nil {
		h.influxError(w, path, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

// LayoutChanged handles POST /api/layout.
//
//	@Summary		Announce a layout change so live views restyle
//	@Tags			influx
//	@Success		204
//	@Security		BearerAuth
//	@Router			/layout [post]
func (h *Handler) LayoutChanged(w http.ResponseWriter, r *http.Request) {
	h.sched.Notify(r.Context(), hub.OpLayoutChanged, nil)
	w.WriteHeader(http.StatusNoContent)
}

// RefreshAll handles POST /api/refresh.
//
//	@Summary		Rebuild every live view
//	@Tags			influx
//	@Produce		json
//	@Success		200		{object}	RefreshResponse
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	ran := h.sched.RefreshAll(r.Context())
	writeJSON(w, http.StatusOK, RefreshResponse{Refreshed: ran})
}

// GetSettings handles GET /api/settings.
//
//	@Summary		Current settings
//	@Tags			settings
//	@Produce		json
//	@Success		200		{object}	settings.Settings
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Settings())
}

// SaveSettings handles PUT /api/settings. Fields missing from the body keep
// their current values.
//
//	@Summary		Save settings
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		settings.Settings	true	"Settings"
//	@Success		200		{object}	settings.Settings
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	next := h.sched.Settings()
	if err := readJSON(w, r, maxSettingsBody, &next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.sched.SaveSettings(r.Context(), next); err != nil {
		h.settingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sched.Settings())
}

// ToggleSortOrder handles POST /api/settings/sort-order.
//
//	@Summary		Flip the sorting principle
//	@Tags			settings
//	@Produce		json
//	@Success		200		{object}	settings.Settings
//	@Security		BearerAuth
//	@Router			/settings/sort-order [post]
func (h *Handler) ToggleSortOrder(w http.ResponseWriter, r *http.Request) {
	next, err := h.sched.ToggleSortOrder(r.Context())
	if err != nil {
		h.settingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (h *Handler) influxError(w http.ResponseWriter, path string, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	slog.Error("influx request failed", slog.String("path", path), slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) settingsError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperr.ErrInvalidSettings) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Error("settings update failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal error")
}
