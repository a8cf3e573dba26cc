package config

import "sync/atomic"

// Store holds the live configuration for long-running processes.
type Store struct {
	path string
	cur  atomic.Pointer[Config]
}

// NewStore wraps an already-loaded config.
func NewStore(path string, cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	s := &Store{path: path}
	s.cur.Store(cfg)
	return s
}

// Get returns the current config. Callers must not mutate it.
func (s *Store) Get() *Config { return s.cur.Load() }

// Path is the file the store reloads from.
func (s *Store) Path() string { return s.path }

// Reload re-reads the file. On error the previous config stays active.
func (s *Store) Reload() (*Config, error) {
	cfg, err := LoadFile(s.path)
	if err != nil {
		return s.Get(), err
	}
	s.cur.Store(cfg)
	return cfg, nil
}
