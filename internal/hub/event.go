// Package hub dispatches vault mutations to every mounted influx consumer.
//
// The scheduler broadcasts each notification to all registered callbacks;
// each consumer decides for itself whether its view is affected.
package hub

import (
	"context"

	"github.com/starford/influx/internal/models"
)

// Op is the kind of a notification.
type Op string

const (
	OpContentModified Op = "content-modified"
	OpDeleted         Op = "deleted"
	OpFocalOpened     Op = "focal-opened"
	OpLayoutChanged   Op = "layout-changed"
	OpSettingsSaved   Op = "settings-saved"
	// OpRefresh is delivered by a bulk refresh of every live view.
	OpRefresh Op = "refresh"
)

// ParseOp maps a wire name to an Op.
func ParseOp(s string) (Op, bool) {
	switch op := Op(s); op {
	case OpContentModified, OpDeleted, OpFocalOpened, OpLayoutChanged, OpSettingsSaved, OpRefresh:
		return op, true
	}
	return "", false
}

// Event is what a consumer callback receives. Document is nil for
// configuration and layout notifications.
type Event struct {
	Op       Op               `json:"op"`
	Document *models.Document `json:"document,omitempty"`
	Style    Style            `json:"style"`
}

// Callback is a registered consumer. A returned error is logged and counted
// and never affects other consumers.
type Callback func(ctx context.Context, ev Event) error
