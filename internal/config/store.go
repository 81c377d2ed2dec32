package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownKey reports a get/set against a key that is not part of
// the schema established by the defaults.
var ErrUnknownKey = errors.New("unknown configuration key")

// Store is a runtime key-value configuration with a fixed key set.
// Defaults define the schema; Set never introduces new keys. An
// optional YAML file persists overrides across restarts.
type Store struct {
	mu       sync.RWMutex
	defaults map[string]any
	values   map[string]any
	path     string
}

// NewStore builds a store seeded from defaults. When path is non-empty
// previously persisted overrides are loaded over the defaults.
func NewStore(defaults map[string]any, path string) (*Store, error) {
	s := &Store{
		defaults: make(map[string]any, len(defaults)),
		values:   make(map[string]any, len(defaults)),
		path:     path,
	}
	for k, v := range defaults {
		s.defaults[k] = v
		s.values[k] = v
	}

	if path != "" {
		if err := s.loadFile(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) loadFile() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", s.path, err)
	}

	var persisted map[string]any
	if err := yaml.Unmarshal(data, &persisted); err != nil {
		return fmt.Errorf("parse config %s: %w", s.path, err)
	}
	for k, v := range persisted {
		if _, ok := s.defaults[k]; ok {
			s.values[k] = v
		}
	}
	return nil
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.values)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Get returns the current value for key.
func (s *Store) Get(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return v, nil
}

// Set overrides the value for an existing key and persists it.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defaults[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	s.values[key] = value
	return s.saveLocked()
}

// Reset restores one key to its default.
func (s *Store) Reset(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defaults[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	s.values[key] = d
	return s.saveLocked()
}

// ResetAll restores every key to its default.
func (s *Store) ResetAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.defaults {
		s.values[k] = v
	}
	return s.saveLocked()
}

// All returns a copy of the current configuration.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
