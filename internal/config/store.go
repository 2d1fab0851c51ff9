package config

import "sync/atomic"

// Store holds the live configuration. Readers always see a complete snapshot;
// a reload swaps the pointer atomically.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Get returns the current configuration snapshot.
func (s *Store) Get() *Config {
	return s.current.Load()
}

// Set replaces the current configuration.
func (s *Store) Set(cfg *Config) {
	s.current.Store(cfg)
}
