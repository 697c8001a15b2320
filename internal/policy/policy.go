// Package policy decides which notes may appear in an influx view and how
// they are displayed, from the regex pattern lists in the user settings.
package policy

import (
	"log/slog"
	"regexp"
	"sync"

	"github.com/starford/influx/internal/settings"
)

// Matcher compiles and caches patterns. A malformed pattern never matches
// and is reported once per distinct pattern string.
type Matcher struct {
	logger *slog.Logger

	mu       sync.Mutex
	compiled map[string]*regexp.Regexp // nil value: known bad pattern
}

// NewMatcher returns a Matcher that reports malformed patterns to logger.
func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{logger: logger, compiled: make(map[string]*regexp.Regexp)}
}

// Any reports whether identifier matches at least one of patterns.
func (m *Matcher) Any(patterns []string, identifier string) bool {
	for _, p := range patterns {
		if re := m.compile(p); re != nil && re.MatchString(identifier) {
			return true
		}
	}
	return false
}

func (m *Matcher) compile(pattern string) *regexp.Regexp {
	m.mu.Lock()
	defer m.mu.Unlock()

	if re, seen := m.compiled[pattern]; seen {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		m.logger.Warn("policy: malformed pattern ignored",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()))
		re = nil
	}
	m.compiled[pattern] = re
	return re
}

// Source is the inclusion policy for linking notes.
type Source struct {
	Behaviour settings.Behaviour
	Include   []string
	Exclude   []string
	matcher   *Matcher
}

// NewSource builds the source policy from the current settings.
func NewSource(s settings.Settings, m *Matcher) Source {
	return Source{
		Behaviour: s.SourceBehaviour,
		Include:   s.SourceInclusionPattern,
		Exclude:   s.SourceExclusionPattern,
		matcher:   m,
	}
}

// IsIncludable reports whether identifier may appear as a linking source.
func (p Source) IsIncludable(identifier string) bool {
	return allowed(p.matcher, p.Behaviour, p.Include, p.Exclude, identifier)
}

// Display is the show/collapse policy for focal notes.
type Display struct {
	Behaviour settings.Behaviour
	Include   []string
	Exclude   []string
	Collapsed []string
	matcher   *Matcher
}

// NewDisplay builds the display policy from the current settings.
func NewDisplay(s settings.Settings, m *Matcher) Display {
	return Display{
		Behaviour: s.ShowBehaviour,
		Include:   s.InclusionPattern,
		Exclude:   s.ExclusionPattern,
		Collapsed: s.CollapsedPattern,
		matcher:   m,
	}
}

// ShowStatus reports whether the influx of the note at path is shown at all.
func (p Display) ShowStatus(path string) bool {
	return allowed(p.matcher, p.Behaviour, p.Include, p.Exclude, path)
}

// CollapsedStatus reports whether the influx of the note starts collapsed.
func (p Display) CollapsedStatus(path string) bool {
	return p.matcher.Any(p.Collapsed, path)
}

func allowed(m *Matcher, b settings.Behaviour, include, exclude []string, id string) bool {
	if b == settings.OptIn {
		return m.Any(include, id)
	}
	return !m.Any(exclude, id)
}
