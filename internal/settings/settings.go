// Package settings holds the persisted user settings that drive influx
// views: live updates, ordering, display and source policies, and styling.
package settings

import (
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Behaviour selects how a pair of inclusion/exclusion pattern lists applies.
type Behaviour string

const (
	// OptOut admits everything not matching an exclusion pattern.
	OptOut Behaviour = "OPT_OUT"
	// OptIn admits only identifiers matching an inclusion pattern.
	OptIn Behaviour = "OPT_IN"
)

// SortPrinciple orders rendered summaries.
type SortPrinciple string

const (
	NewestFirst SortPrinciple = "NEWEST_FIRST"
	OldestFirst SortPrinciple = "OLDEST_FIRST"
)

// Toggle returns the other principle.
func (p SortPrinciple) Toggle() SortPrinciple {
	if p == NewestFirst {
		return OldestFirst
	}
	return NewestFirst
}

// SortAttribute is the timestamp summaries are ordered by.
type SortAttribute string

const (
	SortByCreated  SortAttribute = "ctime"
	SortByModified SortAttribute = "mtime"
)

// Variant is the layout variant of rendered views.
type Variant string

const (
	CenterAligned Variant = "CENTER_ALIGNED"
	Rows          Variant = "ROWS"
)

// Settings is the persisted settings document.
type Settings struct {
	LiveUpdate             bool          `yaml:"live_update" json:"live_update"`
	SortingPrinciple       SortPrinciple `yaml:"sorting_principle" json:"sorting_principle"`
	SortingAttribute       SortAttribute `yaml:"sorting_attribute" json:"sorting_attribute"`
	ShowBehaviour          Behaviour     `yaml:"show_behaviour" json:"show_behaviour"`
	ExclusionPattern       []string      `yaml:"exclusion_pattern" json:"exclusion_pattern"`
	InclusionPattern       []string      `yaml:"inclusion_pattern" json:"inclusion_pattern"`
	CollapsedPattern       []string      `yaml:"collapsed_pattern" json:"collapsed_pattern"`
	SourceBehaviour        Behaviour     `yaml:"source_behaviour" json:"source_behaviour"`
	SourceInclusionPattern []string      `yaml:"source_inclusion_pattern" json:"source_inclusion_pattern"`
	SourceExclusionPattern []string      `yaml:"source_exclusion_pattern" json:"source_exclusion_pattern"`
	ListLimit              int           `yaml:"list_limit" json:"list_limit"`
	Variant                Variant       `yaml:"variant" json:"variant"`
	FontSize               int           `yaml:"font_size" json:"font_size"`
	EntryHeaderVisible     bool          `yaml:"entry_header_visible" json:"entry_header_visible"`
}

// Defaults returns the settings used when nothing has been persisted yet.
func Defaults() Settings {
	return Settings{
		LiveUpdate:             true,
		SortingPrinciple:       NewestFirst,
		SortingAttribute:       SortByCreated,
		ShowBehaviour:          OptOut,
		ExclusionPattern:       []string{},
		InclusionPattern:       []string{},
		CollapsedPattern:       []string{},
		SourceBehaviour:        OptOut,
		SourceInclusionPattern: []string{},
		SourceExclusionPattern: []string{},
		ListLimit:              0,
		Variant:                CenterAligned,
		FontSize:               13,
		EntryHeaderVisible:     true,
	}
}

// Validate validates the settings. Patterns are not checked here; a
// malformed pattern simply never matches.
func (s *Settings) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.SortingPrinciple, validation.Required, validation.In(NewestFirst, OldestFirst)),
		validation.Field(&s.SortingAttribute, validation.Required, validation.In(SortByCreated, SortByModified)),
		validation.Field(&s.ShowBehaviour, validation.Required, validation.In(OptOut, OptIn)),
		validation.Field(&s.SourceBehaviour, validation.Required, validation.In(OptOut, OptIn)),
		validation.Field(&s.ListLimit, validation.Min(0)),
		validation.Field(&s.Variant, validation.Required, validation.In(CenterAligned, Rows)),
		validation.Field(&s.FontSize, validation.Required, validation.Min(6), validation.Max(72)),
	)
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	s.ExclusionPattern = cloneList(s.ExclusionPattern)
	s.InclusionPattern = cloneList(s.InclusionPattern)
	s.CollapsedPattern = cloneList(s.CollapsedPattern)
	s.SourceInclusionPattern = cloneList(s.SourceInclusionPattern)
	s.SourceExclusionPattern = cloneList(s.SourceExclusionPattern)
	return s
}

func cloneList(in []string) []string {
	if in == nil {
		return []string{}
	}
	return slices.Clone(in)
}
