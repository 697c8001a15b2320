package settings

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/starford/influx/internal/apperr"
	pkgconfig "github.com/starford/influx/pkg/config"
)

// Store owns the persisted settings file and the in-memory current value.
type Store struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// Open reads the settings file at path over the defaults. A missing file
// yields the defaults; nothing is written until Save.
func Open(path string) (*Store, error) {
	s := &Store{path: path, current: Defaults()}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file, replacing the current settings.
func (s *Store) Reload() error {
	next := Defaults()
	if s.path != "" {
		err := pkgconfig.Load(s.path, &next, pkgconfig.WithoutEnvExpansion())
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("settings: load %s: %w", s.path, err)
		}
		if err != nil {
			next = Defaults()
		}
	}

	s.mu.Lock()
	s.current = next.Clone()
	s.mu.Unlock()
	return nil
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Save validates and persists next, then makes it current. Invalid settings
// are rejected with an error wrapping apperr.ErrInvalidSettings.
func (s *Store) Save(next Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(next)
}

// Update applies fn to a copy of the current settings and saves the result.
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	fn(&next)
	if err := s.saveLocked(next); err != nil {
		return s.current.Clone(), err
	}
	return next.Clone(), nil
}

func (s *Store) saveLocked(next Settings) error {
	next = next.Clone()
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidSettings, err)
	}
	if s.path != "" {
		if err := pkgconfig.Save(s.path, &next); err != nil {
			return fmt.Errorf("settings: save: %w", err)
		}
	}
	s.current = next
	return nil
}
