package config

import "go.uber.org/atomic"

// Store holds the current configuration snapshot.
type Store struct {
	p *atomic.Pointer[Config]
}

// NewStore returns a new Store with the given initial snapshot.
func NewStore(c *Config) *Store {
	return &Store{p: atomic.NewPointer(c)}
}

// Load returns the current snapshot. The returned value must not be modified.
func (s *Store) Load() *Config {
	return s.p.Load()
}

// Swap publishes a new snapshot and returns the previous one.
func (s *Store) Swap(c *Config) *Config {
	return s.p.Swap(c)
}
