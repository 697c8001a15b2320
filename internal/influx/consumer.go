package influx

import (
	"context"
	"log/slog"

	"github.com/starford/influx/internal/hub"
)

// Update is what a consumer pushes to its sink after its View changed.
type Update struct {
	Op    hub.Op    `json:"op"`
	View  Snapshot  `json:"view"`
	Style hub.Style `json:"style"`
}

// Sink receives updates. It must not block.
type Sink func(Update)

// Consumer binds a View to scheduler notifications.
type Consumer struct {
	view   *View
	sink   Sink
	logger *slog.Logger
}

// NewConsumer returns a Consumer for view pushing to sink.
func NewConsumer(view *View, sink Sink, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{view: view, sink: sink, logger: logger}
}

// Handle is the hub.Callback of the consumer. Refresh and settings
// notifications rebuild, layout notifications only re-render, and a document
// notification rebuilds when the document links to the focal note now, did
// so at the last rebuild, or is the focal note itself.
func (c *Consumer) Handle(ctx context.Context, ev hub.Event) error {
	switch ev.Op {
	case hub.OpRefresh, hub.OpSettingsSaved:
		return c.rebuild(ctx, ev)
	case hub.OpLayoutChanged:
		c.view.Render(ctx)
		c.push(ev)
		return nil
	}

	if ev.Document == nil {
		return nil
	}
	path := ev.Document.Path
	if path == c.view.Focal().Path || c.view.HasSource(path) || c.view.ShouldUpdate(ctx, *ev.Document) {
		return c.rebuild(ctx, ev)
	}
	return nil
}

func (c *Consumer) rebuild(ctx context.Context, ev hub.Event) error {
	ran, err := c.view.Rebuild(ctx)
	if err != nil {
		return err
	}
	if !ran {
		c.logger.Debug("influx: rebuild dropped, one in flight",
			slog.String("view", c.view.ID()),
			slog.String("op", string(ev.Op)))
		return nil
	}
	c.push(ev)
	return nil
}

func (c *Consumer) push(ev hub.Event) {
	if c.sink == nil {
		return
	}
	c.sink(Update{Op: ev.Op, View: c.view.Snapshot(), Style: ev.Style})
}
