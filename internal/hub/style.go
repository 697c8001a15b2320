package hub

import (
	"fmt"

	"github.com/starford/influx/internal/settings"
)

// Style is the styling context handed to consumers with every notification.
type Style struct {
	Variant       settings.Variant `json:"variant"`
	FontSize      int              `json:"font_size"`
	HeaderVisible bool             `json:"header_visible"`
	CSS           string           `json:"css"`
}

// NewStyle derives the styling context from the settings.
func NewStyle(s settings.Settings) Style {
	header := "block"
	if !s.EntryHeaderVisible {
		header = "none"
	}
	align := "center"
	if s.Variant == settings.Rows {
		align = "stretch"
	}
	css := fmt.Sprintf(
		".influx{font-size:%dpx;align-items:%s}.influx .entry-header{display:%s}",
		s.FontSize, align, header,
	)
	return Style{
		Variant:       s.Variant,
		FontSize:      s.FontSize,
		HeaderVisible: s.EntryHeaderVisible,
		CSS:           css,
	}
}
